package scraper

import "strings"

const minLineRunes = 20

var boilerplatePhrases = []string{
	"cookie",
	"privacy policy",
	"terms of service",
	"subscribe to our newsletter",
	"follow us on",
	"share this article",
	"related articles",
}

// CleanText 去掉过短的行和常见的版权/订阅提示，剩余行以空行分隔
func CleanText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if len([]rune(line)) < minLineRunes {
			continue
		}
		lower := strings.ToLower(line)
		noisy := false
		for _, p := range boilerplatePhrases {
			if strings.Contains(lower, p) {
				noisy = true
				break
			}
		}
		if !noisy {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n\n")
}
