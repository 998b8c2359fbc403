package repo

import (
	"context"
	"database/sql"

	"github.com/abdusco/shortlink/internal"
	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"
)

type clickRow struct {
	ID        string `db:"id"`
	LinkID    string `db:"link_id"`
	Seq       int64  `db:"seq"`
	ClickedAt Date   `db:"clicked_at"`
	Source    string `db:"source"`
	Location  string `db:"location"`
}

type ClicksRepo struct {
	db      *sql.DB
	dialect string
}

func NewClicksRepo(db *sql.DB, dialect string) *ClicksRepo {
	return &ClicksRepo{db: db, dialect: dialect}
}

// Create stores click as the seq-th click of the link.
func (r *ClicksRepo) Create(ctx context.Context, linkID string, seq int64, click internal.ClickEvent) error {
	executor := goqu.New(r.dialect, r.db)

	query := executor.Insert("clicks").Rows(clickRow{
		ID:        click.ID,
		LinkID:    linkID,
		Seq:       seq,
		ClickedAt: Date(click.Timestamp),
		Source:    click.Source,
		Location:  click.Location,
	})

	if _, err := query.Executor().ExecContext(ctx); err != nil {
		log.Error().Err(err).Str("link_id", linkID).Msg("failed to record click")
		return err
	}

	log.Debug().Str("link_id", linkID).Int64("seq", seq).Msg("click recorded successfully")
	return nil
}

// ListByLink returns every click grouped by link id in chronological order.
func (r *ClicksRepo) ListByLink(ctx context.Context) (map[string][]internal.ClickEvent, error) {
	executor := goqu.New(r.dialect, r.db)

	query := executor.From("clicks").Select(
		"id", "link_id", "seq", "clicked_at", "source", "location",
	).Order(goqu.C("link_id").Asc(), goqu.C("seq").Asc())

	var rows []clickRow
	if err := query.ScanStructsContext(ctx, &rows); err != nil {
		return nil, err
	}

	byLink := make(map[string][]internal.ClickEvent)
	for _, row := range rows {
		byLink[row.LinkID] = append(byLink[row.LinkID], row.toDomain())
	}
	return byLink, nil
}

func (r *clickRow) toDomain() internal.ClickEvent {
	return internal.ClickEvent{
		ID:        r.ID,
		Timestamp: r.ClickedAt.Time(),
		Source:    r.Source,
		Location:  r.Location,
	}
}
