// Package storetest holds behavior tests every InviteLedger driver must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MahdiBaghbani/labrouter-go/internal/platform/store"
)

// Run exercises a ledger built fresh by newLedger for each subtest.
func Run(t *testing.T, newLedger func(t *testing.T) store.InviteLedger) {
	t.Run("RecordAssignsIDAndTime", func(t *testing.T) {
		l := newLedger(t)
		rec := &store.InviteRecord{Slug: "infoblox-lab1", InviteURL: "https://play.instruqt.com/acme/invite/i1", Source: store.SourceIntent}
		if err := l.Record(context.Background(), rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if rec.ID == "" || rec.CreatedAt.IsZero() {
			t.Errorf("expected ID and CreatedAt to be set, got %+v", rec)
		}
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		l := newLedger(t)
		bad := []*store.InviteRecord{
			{InviteURL: "u", Source: store.SourceLLM},
			{Slug: "s", Source: store.SourceLLM},
			{Slug: "s", InviteURL: "u", Source: "guess"},
		}
		for _, rec := range bad {
			if err := l.Record(context.Background(), rec); !errors.Is(err, store.ErrInvalidRecord) {
				t.Errorf("Record(%+v) = %v, want ErrInvalidRecord", rec, err)
			}
		}
	})

	t.Run("ListNewestFirstWithLimit", func(t *testing.T) {
		l := newLedger(t)
		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := range 5 {
			rec := &store.InviteRecord{
				Slug:      fmt.Sprintf("lab-%d", i),
				InviteURL: fmt.Sprintf("https://x/invite/%d", i),
				Source:    store.SourceTitle,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			}
			if err := l.Record(context.Background(), rec); err != nil {
				t.Fatalf("Record %d: %v", i, err)
			}
		}

		got, err := l.List(context.Background(), 3)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 records, got %d", len(got))
		}
		for i, want := range []string{"lab-4", "lab-3", "lab-2"} {
			if got[i].Slug != want {
				t.Errorf("record %d slug = %q, want %q", i, got[i].Slug, want)
			}
		}

		all, _ := l.List(context.Background(), 0)
		if len(all) != 5 {
			t.Errorf("default limit should return all 5, got %d", len(all))
		}
	})

	t.Run("ListEmpty", func(t *testing.T) {
		l := newLedger(t)
		got, err := l.List(context.Background(), 10)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty ledger, got %d", len(got))
		}
	})
}
