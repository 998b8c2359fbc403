package registry

import (
	"context"
	"fmt"

	"github.com/abdusco/shortlink/internal"
	"github.com/rs/zerolog/log"
)

// Resolver turns a short code into its destination and counts the visit.
type Resolver struct {
	registry *Registry
}

func NewResolver(r *Registry) *Resolver {
	return &Resolver{registry: r}
}

// Resolve either records exactly one click and returns the original URL, or
// records nothing and returns ErrNotFound / ErrExpired.
func (res *Resolver) Resolve(ctx context.Context, code string, tag internal.Tag) (string, error) {
	r := res.registry

	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.byCode[code]
	if !ok {
		return "", fmt.Errorf("%w: %s", internal.ErrNotFound, code)
	}

	if link.IsExpired(r.now()) {
		return "", fmt.Errorf("%w: %s expired at %s", internal.ErrExpired, code, link.ExpiresAt.Format("2006-01-02 15:04:05"))
	}

	click := r.recorder.Record(link, tag)
	if err := r.store.CreateClick(ctx, link, click); err != nil {
		r.recorder.revert(link, click)
		log.Error().Err(err).Str("code", code).Msg("failed to persist click")
		return "", fmt.Errorf("failed to record click: %w", err)
	}

	log.Debug().
		Str("code", code).
		Str("source", tag.Source).
		Str("location", tag.Location).
		Int64("clicks", link.ClickCount).
		Msg("click recorded")

	return link.OriginalURL, nil
}
