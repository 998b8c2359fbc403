package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/abdusco/shortlink/internal"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/rs/zerolog/log"
)

type linkRow struct {
	ID              string `db:"id"`
	ShortCode       string `db:"short_code"`
	OriginalURL     string `db:"original_url"`
	IsCustom        bool   `db:"is_custom"`
	CreatedAt       Date   `db:"created_at"`
	ExpiresAt       Date   `db:"expires_at"`
	ValidityMinutes int    `db:"validity_minutes"`
}

type LinksRepo struct {
	db      *sql.DB
	dialect string
}

func NewLinksRepo(db *sql.DB, dialect string) *LinksRepo {
	return &LinksRepo{db: db, dialect: dialect}
}

func (r *LinksRepo) Create(ctx context.Context, link *internal.Link) error {
	executor := goqu.New(r.dialect, r.db)

	log.Debug().Str("id", link.ID).Str("code", link.ShortCode).Msg("inserting link")

	query := executor.Insert("links").Rows(linkRow{
		ID:              link.ID,
		ShortCode:       link.ShortCode,
		OriginalURL:     link.OriginalURL,
		IsCustom:        link.IsCustom,
		CreatedAt:       Date(link.CreatedAt),
		ExpiresAt:       Date(link.ExpiresAt),
		ValidityMinutes: link.ValidityMinutes,
	})

	if _, err := query.Executor().ExecContext(ctx); err != nil {
		log.Error().Err(err).Str("code", link.ShortCode).Msg("failed to insert link")
		return err
	}
	return nil
}

// Delete removes a link together with its clicks.
func (r *LinksRepo) Delete(ctx context.Context, id string) error {
	executor := goqu.New(r.dialect, r.db)

	return executor.WithTx(func(tx *goqu.TxDatabase) error {
		if _, err := tx.Delete("clicks").Where(goqu.Ex{"link_id": id}).Executor().ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to delete clicks: %w", err)
		}

		res, err := tx.Delete("links").Where(goqu.Ex{"id": id}).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete link: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", internal.ErrNotFound, id)
		}

		log.Debug().Str("id", id).Msg("link deleted")
		return nil
	})
}

// ListAll returns links without their clicks, most recent first.
func (r *LinksRepo) ListAll(ctx context.Context) ([]*internal.Link, error) {
	executor := goqu.New(r.dialect, r.db)

	query := executor.From("links").Select(
		"id", "short_code", "original_url", "is_custom", "created_at", "expires_at", "validity_minutes",
	).Order(goqu.C("created_at").Desc())

	var rows []linkRow
	if err := query.ScanStructsContext(ctx, &rows); err != nil {
		return nil, err
	}

	links := make([]*internal.Link, len(rows))
	for i, row := range rows {
		links[i] = row.toDomain()
	}
	return links, nil
}

func (r *linkRow) toDomain() *internal.Link {
	return &internal.Link{
		ID:              r.ID,
		ShortCode:       r.ShortCode,
		OriginalURL:     r.OriginalURL,
		IsCustom:        r.IsCustom,
		CreatedAt:       r.CreatedAt.Time(),
		ExpiresAt:       r.ExpiresAt.Time(),
		ValidityMinutes: r.ValidityMinutes,
		Clicks:          []internal.ClickEvent{},
	}
}
