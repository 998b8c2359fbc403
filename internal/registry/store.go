package registry

import (
	"context"

	"github.com/abdusco/shortlink/internal"
)

// Store persists registry mutations. The Registry keeps the authoritative
// in-memory index and calls the store inside its critical section, so a
// store error aborts the mutation.
type Store interface {
	LoadLinks(ctx context.Context) ([]*internal.Link, error)
	CreateLink(ctx context.Context, link *internal.Link) error
	DeleteLink(ctx context.Context, id string) error
	// CreateClick persists the click that was just appended to link.
	CreateClick(ctx context.Context, link *internal.Link, click internal.ClickEvent) error
}

// MemoryStore keeps nothing beyond the registry's own maps.
type MemoryStore struct{}

func (MemoryStore) LoadLinks(context.Context) ([]*internal.Link, error) { return nil, nil }

func (MemoryStore) CreateLink(context.Context, *internal.Link) error { return nil }

func (MemoryStore) DeleteLink(context.Context, string) error { return nil }

func (MemoryStore) CreateClick(context.Context, *internal.Link, internal.ClickEvent) error {
	return nil
}
