package registry

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	// DefaultCapacity is the number of links allowed to be active at once.
	DefaultCapacity = 5
	// DefaultMaxAttempts bounds code generation per create.
	DefaultMaxAttempts = 16
	// MaxValidityMinutes is the longest validity whose expiry fits in a time.Duration.
	MaxValidityMinutes = math.MaxInt64 / int64(time.Minute)
)

var customCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Registry struct {
	mu     sync.RWMutex
	byCode map[string]*internal.Link
	byID   map[string]*internal.Link
	order  []*internal.Link // most recent first

	store       Store
	gen         CodeGenerator
	recorder    *ClickRecorder
	now         func() time.Time
	capacity    int
	maxAttempts int
}

type Option func(*Registry)

func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

func WithGenerator(g CodeGenerator) Option {
	return func(r *Registry) { r.gen = g }
}

// WithClock replaces time.Now for expiry checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithCapacity(n int) Option {
	return func(r *Registry) { r.capacity = n }
}

func WithMaxAttempts(n int) Option {
	return func(r *Registry) { r.maxAttempts = n }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		byCode:      make(map[string]*internal.Link),
		byID:        make(map[string]*internal.Link),
		store:       MemoryStore{},
		gen:         NewRandomGenerator(DefaultAlphabet, DefaultCodeLength),
		now:         time.Now,
		capacity:    DefaultCapacity,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.recorder = NewClickRecorder(r.now)
	return r
}

type CreateParams struct {
	OriginalURL string
	// CustomCode is nil when the caller wants a generated code.
	CustomCode      *string
	ValidityMinutes int
}

// Create validates p and stores a new link. Checks run in a fixed order and
// the first failure is returned.
func (r *Registry) Create(ctx context.Context, p CreateParams) (internal.Link, error) {
	originalURL, err := validateURL(p.OriginalURL)
	if err != nil {
		return internal.Link{}, err
	}

	if p.ValidityMinutes <= 0 || int64(p.ValidityMinutes) > MaxValidityMinutes {
		return internal.Link{}, fmt.Errorf("%w: got %d", internal.ErrInvalidValidityPeriod, p.ValidityMinutes)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	active := lo.CountBy(r.order, func(l *internal.Link) bool { return l.IsActive(now) })
	if active >= r.capacity {
		return internal.Link{}, fmt.Errorf("%w: %d of %d", internal.ErrCapacityExceeded, active, r.capacity)
	}

	code, isCustom, err := r.pickCode(p.CustomCode)
	if err != nil {
		return internal.Link{}, err
	}

	link := &internal.Link{
		ID:              uuid.NewString(),
		OriginalURL:     originalURL,
		ShortCode:       code,
		IsCustom:        isCustom,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(p.ValidityMinutes) * time.Minute),
		ValidityMinutes: p.ValidityMinutes,
		ClickCount:      0,
		Clicks:          []internal.ClickEvent{},
	}

	if err := r.store.CreateLink(ctx, link); err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to persist link")
		return internal.Link{}, fmt.Errorf("failed to persist link: %w", err)
	}

	r.byCode[link.ShortCode] = link
	r.byID[link.ID] = link
	r.order = slices.Insert(r.order, 0, link)

	log.Info().
		Str("id", link.ID).
		Str("code", link.ShortCode).
		Bool("custom", link.IsCustom).
		Time("expires_at", link.ExpiresAt).
		Msg("link created")

	return link.Clone(), nil
}

func (r *Registry) pickCode(custom *string) (string, bool, error) {
	if custom != nil {
		code := *custom
		if code == "" || !customCodePattern.MatchString(code) {
			return "", false, fmt.Errorf("%w: %q is not a valid code", internal.ErrCodeConflict, code)
		}
		if _, taken := r.byCode[code]; taken {
			return "", false, fmt.Errorf("%w: %s", internal.ErrCodeConflict, code)
		}
		return code, true, nil
	}

	for attempt := range r.maxAttempts {
		code := r.gen.Generate()
		if _, taken := r.byCode[code]; !taken {
			return code, false, nil
		}
		log.Debug().Str("code", code).Int("attempt", attempt+1).Msg("generated code already taken")
	}

	return "", false, fmt.Errorf("%w after %d attempts", internal.ErrCodeSpaceExhausted, r.maxAttempts)
}

// Delete removes the link with the given id. Its code can be reused at once.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", internal.ErrNotFound, id)
	}

	if err := r.store.DeleteLink(ctx, id); err != nil {
		log.Error().Err(err).Str("id", id).Msg("failed to delete link from store")
		return fmt.Errorf("failed to delete link: %w", err)
	}

	delete(r.byID, id)
	delete(r.byCode, link.ShortCode)
	r.order = slices.DeleteFunc(r.order, func(l *internal.Link) bool { return l.ID == id })

	log.Info().Str("id", id).Str("code", link.ShortCode).Msg("link deleted")
	return nil
}

// Get finds a link by short code, falling back to its id.
func (r *Registry) Get(codeOrID string) (internal.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if link, ok := r.byCode[codeOrID]; ok {
		return link.Clone(), nil
	}
	if link, ok := r.byID[codeOrID]; ok {
		return link.Clone(), nil
	}
	return internal.Link{}, fmt.Errorf("%w: %s", internal.ErrNotFound, codeOrID)
}

// List returns copies of all links, most recently created first.
func (r *Registry) List() []internal.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.order, func(l *internal.Link, _ int) internal.Link { return l.Clone() })
}

// Now is the registry's clock, exposed so callers evaluate expiry the same way.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Restore replaces the in-memory index with the links held by the store.
func (r *Registry) Restore(ctx context.Context) error {
	links, err := r.store.LoadLinks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load links: %w", err)
	}

	slices.SortStableFunc(links, func(a, b *internal.Link) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byCode = make(map[string]*internal.Link, len(links))
	r.byID = make(map[string]*internal.Link, len(links))
	r.order = make([]*internal.Link, 0, len(links))
	for _, link := range links {
		if link.Clicks == nil {
			link.Clicks = []internal.ClickEvent{}
		}
		link.ClickCount = int64(len(link.Clicks))
		r.byCode[link.ShortCode] = link
		r.byID[link.ID] = link
		r.order = append(r.order, link)
	}

	log.Info().Int("links", len(links)).Msg("registry restored from store")
	return nil
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", internal.ErrInvalidURL)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", internal.ErrInvalidURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", internal.ErrInvalidURL)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("%w: host is required", internal.ErrInvalidURL)
	}

	return raw, nil
}
