package journal

import (
	"context"

	"dodo/internal/model"
)

// Repository defines the standard interface for the order journal.
type Repository interface {
	LogOrder(ctx context.Context, entry model.JournalEntry) error
	Migrate(ctx context.Context) error
}

// Nop is the journal used when no database is configured.
type Nop struct{}

func (Nop) LogOrder(context.Context, model.JournalEntry) error { return nil }

func (Nop) Migrate(context.Context) error { return nil }
