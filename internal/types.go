package internal

import (
	"slices"
	"time"
)

// Link maps a short code to its destination and carries its click history.
type Link struct {
	ID              string       `json:"id"`
	OriginalURL     string       `json:"original_url"`
	ShortCode       string       `json:"short_code"`
	IsCustom        bool         `json:"is_custom"`
	CreatedAt       time.Time    `json:"created_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
	ValidityMinutes int          `json:"validity_minutes"`
	ClickCount      int64        `json:"click_count"`
	Clicks          []ClickEvent `json:"clicks"`
}

// IsExpired reports whether now is at or past the link's expiry.
func (l *Link) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l *Link) IsActive(now time.Time) bool {
	return !l.IsExpired(now)
}

// Clone returns a copy that shares no click storage with l.
func (l *Link) Clone() Link {
	c := *l
	c.Clicks = slices.Clone(l.Clicks)
	return c
}

type ClickEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Location  string    `json:"location"`
}

// Tag is the opaque analytics metadata attached to a click.
type Tag struct {
	Source   string `json:"source"`
	Location string `json:"location"`
}
