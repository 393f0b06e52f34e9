package storage

import (
	"fmt"

	"chatterbox/pkg/config"
)

// NewStore returns a concrete Store based on database configuration.
// Path holds the file path for sqlite and the DSN for mysql.
func NewStore(cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Type {
	case "sqlite", "":
		return NewSQLiteStore(cfg.Path)
	case "mysql":
		return NewMySQLStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}
