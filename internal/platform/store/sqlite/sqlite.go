// Package sqlite is the invite ledger on SQLite via GORM.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	svccfg "github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/store"
)

func init() {
	store.Register("sqlite", func(conf map[string]any) (store.InviteLedger, error) {
		var c Config
		if err := svccfg.Decode(conf, &c); err != nil {
			return nil, err
		}
		return Open(c.Path)
	})
}

// Config is decoded from [store.drivers.sqlite].
type Config struct {
	Path string `mapstructure:"path"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "labrouter.db"
	}
}

// Ledger stores invite records in the invite_records table.
type Ledger struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&store.InviteRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Record inserts rec.
func (l *Ledger) Record(ctx context.Context, rec *store.InviteRecord) error {
	if err := store.Prepare(rec); err != nil {
		return err
	}
	return l.db.WithContext(ctx).Create(rec).Error
}

// List returns up to limit records, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]*store.InviteRecord, error) {
	var out []*store.InviteRecord
	err := l.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(store.NormalizeLimit(limit)).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying connection.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ store.InviteLedger = (*Ledger)(nil)
