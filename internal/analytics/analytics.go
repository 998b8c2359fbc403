// Package analytics derives read-only reports from a snapshot of links.
// Nothing here is cached; every call recomputes from its arguments.
package analytics

import (
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/samber/lo"
)

type Totals struct {
	LinkCount   int   `json:"link_count"`
	TotalClicks int64 `json:"total_clicks"`
	ActiveCount int   `json:"active_count"`
}

type CodeClicks struct {
	Code   string `json:"code"`
	Clicks int64  `json:"clicks"`
}

type Report struct {
	Totals     Totals         `json:"totals"`
	TopClicks  []CodeClicks   `json:"top_clicks"`
	BySource   map[string]int `json:"by_source"`
	ByLocation map[string]int `json:"by_location"`
}

func ComputeTotals(links []internal.Link, now time.Time) Totals {
	return Totals{
		LinkCount:   len(links),
		TotalClicks: lo.SumBy(links, func(l internal.Link) int64 { return l.ClickCount }),
		ActiveCount: lo.CountBy(links, func(l internal.Link) bool { return l.IsActive(now) }),
	}
}

// TopClicks keeps the listing order of links (most recent first), not the
// click ranking, and truncates to limit.
func TopClicks(links []internal.Link, limit int) []CodeClicks {
	if limit <= 0 {
		return []CodeClicks{}
	}
	return lo.Map(lo.Slice(links, 0, limit), func(l internal.Link, _ int) CodeClicks {
		return CodeClicks{Code: l.ShortCode, Clicks: l.ClickCount}
	})
}

func BySource(links []internal.Link) map[string]int {
	return lo.CountValuesBy(allClicks(links), func(c internal.ClickEvent) string { return c.Source })
}

func ByLocation(links []internal.Link) map[string]int {
	return lo.CountValuesBy(allClicks(links), func(c internal.ClickEvent) string { return c.Location })
}

// RecentClicks returns up to limit of the link's latest clicks, newest first.
func RecentClicks(link internal.Link, limit int) []internal.ClickEvent {
	recent := make([]internal.ClickEvent, 0, max(min(limit, len(link.Clicks)), 0))
	for i := len(link.Clicks) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, link.Clicks[i])
	}
	return recent
}

func Compute(links []internal.Link, now time.Time, limit int) Report {
	return Report{
		Totals:     ComputeTotals(links, now),
		TopClicks:  TopClicks(links, limit),
		BySource:   BySource(links),
		ByLocation: ByLocation(links),
	}
}

func allClicks(links []internal.Link) []internal.ClickEvent {
	return lo.FlatMap(links, func(l internal.Link, _ int) []internal.ClickEvent { return l.Clicks })
}
