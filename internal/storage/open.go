package storage

import (
	"strings"

	"go.uber.org/zap"
)

// Open 在进程启动时根据连接串选择后端：postgres:// 或 key=value 形式的 DSN 使用 PostgreSQL，
// 其余视为 SQLite 文件路径（为空时使用 onconews.db）
func Open(dsn string, logger *zap.Logger) (Store, error) {
	if IsPostgresDSN(dsn) {
		return NewPostgres(dsn, logger)
	}
	return NewSQLite(strings.TrimPrefix(dsn, "sqlite://"), logger)
}

func IsPostgresDSN(dsn string) bool {
	d := strings.TrimSpace(dsn)
	return strings.HasPrefix(d, "postgres://") ||
		strings.HasPrefix(d, "postgresql://") ||
		strings.Contains(d, "host=")
}
