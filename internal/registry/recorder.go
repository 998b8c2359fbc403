package registry

import (
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/google/uuid"
)

// ClickRecorder is the only code that touches a link's click state.
type ClickRecorder struct {
	now func() time.Time
}

func NewClickRecorder(now func() time.Time) *ClickRecorder {
	if now == nil {
		now = time.Now
	}
	return &ClickRecorder{now: now}
}

// Record appends a click tagged with tag and bumps the counter by one.
func (r *ClickRecorder) Record(link *internal.Link, tag internal.Tag) internal.ClickEvent {
	click := internal.ClickEvent{
		ID:        uuid.NewString(),
		Timestamp: r.now(),
		Source:    tag.Source,
		Location:  tag.Location,
	}
	link.Clicks = append(link.Clicks, click)
	link.ClickCount++
	return click
}

// revert drops the most recent click when it could not be persisted.
func (r *ClickRecorder) revert(link *internal.Link, click internal.ClickEvent) {
	n := len(link.Clicks)
	if n == 0 || link.Clicks[n-1].ID != click.ID {
		return
	}
	link.Clicks = link.Clicks[:n-1]
	link.ClickCount--
}
