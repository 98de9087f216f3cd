// Package memory is the in-process invite ledger. Records are lost on restart.
package memory

import (
	"context"
	"sync"

	svccfg "github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/store"
)

func init() {
	store.Register("memory", func(conf map[string]any) (store.InviteLedger, error) {
		var c Config
		if err := svccfg.Decode(conf, &c); err != nil {
			return nil, err
		}
		return New(c.MaxRecords), nil
	})
}

// Config is decoded from [store.drivers.memory].
type Config struct {
	MaxRecords int `mapstructure:"max_records"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.MaxRecords <= 0 {
		c.MaxRecords = 1000
	}
}

// Ledger keeps the newest MaxRecords invites.
type Ledger struct {
	mu      sync.RWMutex
	records []*store.InviteRecord
	max     int
	closed  bool
}

// New returns an empty ledger capped at max records.
func New(max int) *Ledger {
	return &Ledger{max: max}
}

// Record appends rec, evicting the oldest record beyond the cap.
func (l *Ledger) Record(_ context.Context, rec *store.InviteRecord) error {
	if err := store.Prepare(rec); err != nil {
		return err
	}
	cp := *rec

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return store.ErrClosed
	}
	l.records = append(l.records, &cp)
	if l.max > 0 && len(l.records) > l.max {
		l.records = l.records[len(l.records)-l.max:]
	}
	return nil
}

// List returns copies of up to limit records, newest first.
func (l *Ledger) List(_ context.Context, limit int) ([]*store.InviteRecord, error) {
	limit = store.NormalizeLimit(limit)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, store.ErrClosed
	}
	out := make([]*store.InviteRecord, 0, min(limit, len(l.records)))
	for i := len(l.records) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *l.records[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Close drops all records.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.records = nil
	return nil
}

var _ store.InviteLedger = (*Ledger)(nil)
