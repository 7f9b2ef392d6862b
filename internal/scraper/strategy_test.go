package scraper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractParagraphsPrefersArticle(t *testing.T) {
	text, err := ExtractParagraphs([]byte(articleHTML(3)))
	require.NoError(t, err)

	parts := strings.Split(text, "\n\n")
	require.Len(t, parts, 3)
	assert.True(t, strings.HasPrefix(parts[0], "Paragrafo 0:"))
	assert.NotContains(t, text, "Testata")
}

func TestExtractParagraphsContentClassFallback(t *testing.T) {
	html := `<html><body>
	<div class="sidebar"><p>` + strings.Repeat("pubblicità laterale ", 10) + `</p></div>
	<p>Paragrafo fuori dal contenitore principale che non deve comparire nel testo</p>
	<div class="Main-Content wrapper">
	  <p>Primo   paragrafo
	     del contenuto principale con abbastanza testo per superare la soglia minima.</p>
	  <p>Secondo paragrafo del contenuto principale.</p>
	  <p>   </p>
	</div></body></html>`

	text, err := ExtractParagraphs([]byte(html))
	require.NoError(t, err)
	assert.Equal(t,
		"Primo paragrafo del contenuto principale con abbastanza testo per superare la soglia minima.\n\nSecondo paragrafo del contenuto principale.",
		text)
}

func TestExtractParagraphsBodyFallbackAndShortText(t *testing.T) {
	long := `<html><body><p>` + strings.Repeat("testo ", 30) + `</p><div class="comments-area"><p>commento</p></div></body></html>`
	text, err := ExtractParagraphs([]byte(long))
	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.NotContains(t, text, "commento")

	short := `<html><body><article><p>Troppo breve.</p></article></body></html>`
	text, err = ExtractParagraphs([]byte(short))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestCleanText(t *testing.T) {
	in := strings.Join([]string{
		"Titolo breve",
		"La nuova terapia contro il linfoma è stata approvata dall'agenzia.",
		"We use cookies to improve your experience on this website.",
		"   Lo studio ha coinvolto    oltre mille pazienti in Italia.   ",
		"Subscribe to our newsletter for the latest oncology news",
		"",
	}, "\n")

	assert.Equal(t,
		"La nuova terapia contro il linfoma è stata approvata dall'agenzia.\n\nLo studio ha coinvolto oltre mille pazienti in Italia.",
		CleanText(in))
	assert.Empty(t, CleanText("   "))
}
