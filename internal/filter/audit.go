package filter

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultAuditFile = "filtered_articles.log"

// errWriter 记录底层写入的第一个错误，zap 本身不会把写失败返回给调用方
type errWriter struct {
	f   *os.File
	err error
}

func (w *errWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil && w.err == nil {
		w.err = err
	}
	return n, err
}

func (w *errWriter) Sync() error {
	return w.f.Sync()
}

// appendAudit 以 JSON 行的形式把一批被拒绝的条目追加到 path
func appendAudit(path string, rejected []Rejected) error {
	if path == "" {
		path = defaultAuditFile
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	w := &errWriter{f: file}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), w, zapcore.InfoLevel)
	audit := zap.New(core).With(zap.String("batch", uuid.NewString()))

	for _, r := range rejected {
		audit.Info("filtered",
			zap.String("title", r.Candidate.Title),
			zap.String("url", r.Candidate.URL),
			zap.String("source", r.Candidate.SourceName),
			zap.String("reason", r.Reason))
	}

	syncErr := audit.Sync()
	closeErr := file.Close()
	if w.err != nil {
		return fmt.Errorf("write audit log: %w", w.err)
	}
	return errors.Join(syncErr, closeErr)
}
