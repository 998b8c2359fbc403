// Package redisstore persists links in Redis: one hash holding every link
// record keyed by id, plus one list of click events per link.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/registry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultPrefix = "shortlink:"

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis")
	return rdb, nil
}

type linkRecord struct {
	ID              string    `json:"id"`
	OriginalURL     string    `json:"original_url"`
	ShortCode       string    `json:"short_code"`
	IsCustom        bool      `json:"is_custom"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	ValidityMinutes int       `json:"validity_minutes"`
}

type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ registry.Store = (*Store)(nil)

func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) linksKey() string {
	return s.prefix + "links"
}

func (s *Store) clicksKey(linkID string) string {
	return s.prefix + "clicks:" + linkID
}

func (s *Store) LoadLinks(ctx context.Context) ([]*internal.Link, error) {
	records, err := s.rdb.HGetAll(ctx, s.linksKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read links: %w", err)
	}

	links := make([]*internal.Link, 0, len(records))
	for id, raw := range records {
		var rec linkRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode link %s: %w", id, err)
		}

		rawClicks, err := s.rdb.LRange(ctx, s.clicksKey(id), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read clicks of %s: %w", id, err)
		}

		clicks := make([]internal.ClickEvent, 0, len(rawClicks))
		for _, rc := range rawClicks {
			var click internal.ClickEvent
			if err := json.Unmarshal([]byte(rc), &click); err != nil {
				return nil, fmt.Errorf("failed to decode click of %s: %w", id, err)
			}
			clicks = append(clicks, click)
		}

		links = append(links, &internal.Link{
			ID:              rec.ID,
			OriginalURL:     rec.OriginalURL,
			ShortCode:       rec.ShortCode,
			IsCustom:        rec.IsCustom,
			CreatedAt:       rec.CreatedAt,
			ExpiresAt:       rec.ExpiresAt,
			ValidityMinutes: rec.ValidityMinutes,
			ClickCount:      int64(len(clicks)),
			Clicks:          clicks,
		})
	}

	log.Debug().Int("links", len(links)).Msg("links loaded from redis")
	return links, nil
}

func (s *Store) CreateLink(ctx context.Context, link *internal.Link) error {
	data, err := json.Marshal(linkRecord{
		ID:              link.ID,
		OriginalURL:     link.OriginalURL,
		ShortCode:       link.ShortCode,
		IsCustom:        link.IsCustom,
		CreatedAt:       link.CreatedAt,
		ExpiresAt:       link.ExpiresAt,
		ValidityMinutes: link.ValidityMinutes,
	})
	if err != nil {
		return err
	}

	ok, err := s.rdb.HSetNX(ctx, s.linksKey(), link.ID, data).Result()
	if err != nil {
		return fmt.Errorf("failed to store link: %w", err)
	}
	if !ok {
		return fmt.Errorf("link %s already stored", link.ID)
	}
	return nil
}

func (s *Store) DeleteLink(ctx context.Context, id string) error {
	var removed *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, s.linksKey(), id)
		pipe.Del(ctx, s.clicksKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("%w: %s", internal.ErrNotFound, id)
	}
	return nil
}

func (s *Store) CreateClick(ctx context.Context, link *internal.Link, click internal.ClickEvent) error {
	data, err := json.Marshal(click)
	if err != nil {
		return err
	}
	if err := s.rdb.RPush(ctx, s.clicksKey(link.ID), data).Err(); err != nil {
		return fmt.Errorf("failed to store click: %w", err)
	}
	return nil
}
