// Package store holds the invite ledger: a record of every invite the router
// has handed out, with how its lab was chosen.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrClosed        = errors.New("store closed")
	ErrInvalidRecord = errors.New("invalid invite record")
)

// Match sources recorded with each invite.
const (
	SourceIntent = "intent"
	SourceTitle  = "title"
	SourceLLM    = "llm"
	SourceDirect = "direct"
)

// DefaultListLimit applies when List is called with limit <= 0.
const DefaultListLimit = 50

// InviteRecord is one issued invite.
type InviteRecord struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Slug      string    `json:"slug" gorm:"index"`
	InviteURL string    `json:"invite_url"`
	Source    string    `json:"source"`
	Prompt    string    `json:"prompt,omitempty"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// InviteLedger persists invite records. Implementations are safe for concurrent use.
type InviteLedger interface {
	// Record stores rec, assigning ID and CreatedAt when they are empty.
	Record(ctx context.Context, rec *InviteRecord) error

	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]*InviteRecord, error)

	Close() error
}

// Prepare validates rec and fills in ID (UUIDv7) and CreatedAt.
func Prepare(rec *InviteRecord) error {
	if rec == nil || rec.Slug == "" || rec.InviteURL == "" {
		return ErrInvalidRecord
	}
	switch rec.Source {
	case SourceIntent, SourceTitle, SourceLLM, SourceDirect:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidRecord, rec.Source)
	}
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		rec.ID = id.String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return nil
}

// NormalizeLimit maps non-positive limits to DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// Driver builds a ledger from its [store.drivers.<name>] table.
type Driver func(conf map[string]any) (InviteLedger, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{}
)

// Register makes a driver available by name. Called from init().
func Register(name string, d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

// AvailableDrivers returns registered driver names, sorted.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// New opens the named ledger. An empty name selects "memory".
func New(name string, driverConfigs map[string]any) (InviteLedger, error) {
	if name == "" {
		name = "memory"
	}
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (available: %v)", name, AvailableDrivers())
	}

	var conf map[string]any
	if raw, ok := driverConfigs[name]; ok {
		conf, ok = raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("store.drivers.%s must be a table", name)
		}
	}
	return d(conf)
}
