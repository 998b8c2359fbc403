package repo

import (
	"context"
	"database/sql"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/registry"
)

// Store backs the registry with the links and clicks tables.
type Store struct {
	links  *LinksRepo
	clicks *ClicksRepo
}

var _ registry.Store = (*Store)(nil)

func NewStore(db *sql.DB, dialect string) *Store {
	return &Store{
		links:  NewLinksRepo(db, dialect),
		clicks: NewClicksRepo(db, dialect),
	}
}

func (s *Store) LoadLinks(ctx context.Context) ([]*internal.Link, error) {
	links, err := s.links.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	clicks, err := s.clicks.ListByLink(ctx)
	if err != nil {
		return nil, err
	}

	for _, link := range links {
		if c, ok := clicks[link.ID]; ok {
			link.Clicks = c
		}
		link.ClickCount = int64(len(link.Clicks))
	}
	return links, nil
}

func (s *Store) CreateLink(ctx context.Context, link *internal.Link) error {
	return s.links.Create(ctx, link)
}

func (s *Store) DeleteLink(ctx context.Context, id string) error {
	return s.links.Delete(ctx, id)
}

func (s *Store) CreateClick(ctx context.Context, link *internal.Link, click internal.ClickEvent) error {
	return s.clicks.Create(ctx, link.ID, link.ClickCount, click)
}
