package storage

import (
	"context"
	"fmt"
	"strings"
)

// Open returns the backend named by kind ("sqlite" or "postgres").
func Open(ctx context.Context, kind, sqlitePath, postgresURL string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "sqlite":
		return OpenSQLite(ctx, sqlitePath)
	case "postgres", "pg":
		if postgresURL == "" {
			return nil, fmt.Errorf("document store postgres requires a postgres url")
		}
		db, err := NewDB(ctx, postgresURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return NewPGStore(db), nil
	default:
		return nil, fmt.Errorf("unknown document store %q", kind)
	}
}
