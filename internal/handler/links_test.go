package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/analytics"
	"github.com/abdusco/shortlink/internal/logger"
	"github.com/abdusco/shortlink/internal/registry"
	"github.com/abdusco/shortlink/internal/tagging"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type testEnv struct {
	e        *echo.Echo
	now      time.Time
	registry *registry.Registry
	links    *LinkHandler
	stats    *AnalyticsHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		e:   echo.New(),
		now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	env.registry = registry.New(registry.WithClock(func() time.Time { return env.now }))
	env.links = NewLinkHandler(env.registry, tagging.HeaderTagger{}, "http://sho.rt/")
	env.stats = NewAnalyticsHandler(env.registry)
	return env
}

func (env *testEnv) context(method, target, body string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	if len(names) > 0 {
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	return c, rec
}

func (env *testEnv) create(t *testing.T, body string) LinkResponse {
	t.Helper()
	c, rec := env.context(http.MethodPost, "/api/links", body)
	if err := env.links.CreateLink(c); err != nil {
		t.Fatalf("CreateLink(%s) failed: %v", body, err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; want 201", rec.Code)
	}
	var resp CreateLinkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	return resp.Link
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("error %v is not an *echo.HTTPError", err)
	}
	return he.Code
}

func TestCreateLink(t *testing.T) {
	env := newTestEnv(t)

	link := env.create(t, `{"url": "https://example.com/a", "custom_code": "docs", "validity_minutes": 15}`)

	if link.ShortCode != "docs" || !link.IsCustom {
		t.Errorf("code = %s custom = %v; want docs, true", link.ShortCode, link.IsCustom)
	}
	if link.ShortURL != "http://sho.rt/docs" {
		t.Errorf("ShortURL = %s; want http://sho.rt/docs", link.ShortURL)
	}
	if link.ValidityMinutes != 15 || !link.ExpiresAt.Equal(env.now.Add(15*time.Minute)) {
		t.Errorf("validity = %d expires = %v", link.ValidityMinutes, link.ExpiresAt)
	}
	if !link.IsActive || link.IsExpired {
		t.Errorf("new link should be active: %+v", link)
	}
}

func TestCreateLink_Defaults(t *testing.T) {
	env := newTestEnv(t)

	link := env.create(t, `{"url": "https://example.com", "custom_code": ""}`)

	if link.IsCustom || len(link.ShortCode) != registry.DefaultCodeLength {
		t.Errorf("empty custom code should generate one, got %q custom=%v", link.ShortCode, link.IsCustom)
	}
	if link.ValidityMinutes != defaultValidityMinutes {
		t.Errorf("ValidityMinutes = %d; want %d", link.ValidityMinutes, defaultValidityMinutes)
	}
}

func TestCreateLink_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"url": `, http.StatusBadRequest},
		{"validity as text", `{"url": "https://example.com", "validity_minutes": "ten"}`, http.StatusBadRequest},
		{"missing url", `{"validity_minutes": 10}`, http.StatusBadRequest},
		{"bad scheme", `{"url": "javascript:alert(1)", "validity_minutes": 10}`, http.StatusBadRequest},
		{"validity too long", `{"url": "https://example.com", "validity_minutes": 200000000}`, http.StatusBadRequest},
		{"zero validity", `{"url": "https://example.com", "validity_minutes": 0}`, http.StatusBadRequest},
		{"invalid custom code", `{"url": "https://example.com", "custom_code": "a b", "validity_minutes": 10}`, http.StatusConflict},
		{"taken custom code", `{"url": "https://example.com", "custom_code": "taken", "validity_minutes": 10}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.create(t, `{"url": "https://example.com", "custom_code": "taken"}`)

			c, _ := env.context(http.MethodPost, "/api/links", tt.body)
			err := env.links.CreateLink(c)
			if code := httpCode(t, err); code != tt.want {
				t.Errorf("status = %d; want %d (err: %v)", code, tt.want, err)
			}
		})
	}
}

func TestCreateLink_CapacityExceeded(t *testing.T) {
	env := newTestEnv(t)
	for i := range registry.DefaultCapacity {
		env.create(t, fmt.Sprintf(`{"url": "https://example.com/%d", "validity_minutes": 60}`, i))
	}

	c, _ := env.context(http.MethodPost, "/api/links", `{"url": "https://example.com/6", "validity_minutes": 60}`)
	if code := httpCode(t, env.links.CreateLink(c)); code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d; want 422", code)
	}
}

func TestListLinks(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"url": "https://example.com/1", "custom_code": "first"}`)
	env.now = env.now.Add(time.Second)
	env.create(t, `{"url": "https://example.com/2", "custom_code": "second", "validity_minutes": 1}`)
	env.now = env.now.Add(2 * time.Minute)

	c, rec := env.context(http.MethodGet, "/api/links", "")
	if err := env.links.ListLinks(c); err != nil {
		t.Fatalf("ListLinks failed: %v", err)
	}

	var resp ListLinksResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(resp.Links) != 2 || resp.Links[0].ShortCode != "second" || resp.Links[1].ShortCode != "first" {
		t.Fatalf("unexpected list: %+v", resp.Links)
	}
	if !resp.Links[0].IsExpired || resp.Links[1].IsExpired {
		t.Errorf("expiry flags wrong: %+v", resp.Links)
	}
}

func TestContextParams(t *testing.T) {
	env := newTestEnv(t)

	c, _ := env.context(http.MethodGet, "/api/links/abc/clicks", "", "ref", "abc")
	if got := c.Param("ref"); got != "abc" {
		t.Errorf("Param(ref) = %q; want abc", got)
	}
}

func TestGetAndDeleteLink(t *testing.T) {
	env := newTestEnv(t)
	created := env.create(t, `{"url": "https://example.com", "custom_code": "find-me"}`)

	for _, ref := range []string{"find-me", created.ID} {
		c, rec := env.context(http.MethodGet, "/api/links/"+ref, "", "ref", ref)
		if err := env.links.GetLink(c); err != nil {
			t.Fatalf("GetLink(%s) failed: %v", ref, err)
		}
		if !strings.Contains(rec.Body.String(), `"short_code":"find-me"`) {
			t.Errorf("GetLink(%s) body = %s", ref, rec.Body.String())
		}
	}

	c, rec := env.context(http.MethodDelete, "/api/links/"+created.ID, "", "id", created.ID)
	if err := env.links.DeleteLink(c); err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d; want 204", rec.Code)
	}

	c, _ = env.context(http.MethodDelete, "/api/links/"+created.ID, "", "id", created.ID)
	if code := httpCode(t, env.links.DeleteLink(c)); code != http.StatusNotFound {
		t.Errorf("second delete status = %d; want 404", code)
	}

	c, _ = env.context(http.MethodGet, "/api/links/find-me", "", "ref", "find-me")
	if code := httpCode(t, env.links.GetLink(c)); code != http.StatusNotFound {
		t.Errorf("get after delete status = %d; want 404", code)
	}
}

func TestRedirect(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"url": "https://example.com/a", "custom_code": "go", "validity_minutes": 5}`)

	c, rec := env.context(http.MethodGet, "/go", "", "code", "go")
	c.Request().Header.Set("Referer", "https://www.reddit.com/r/golang")
	c.Request().Header.Set("CF-IPCountry", "CA")
	if err := env.links.Redirect(c); err != nil {
		t.Fatalf("Redirect failed: %v", err)
	}
	if rec.Code != http.StatusFound {
		t.Errorf("status = %d; want 302", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "https://example.com/a" {
		t.Errorf("Location = %s; want https://example.com/a", loc)
	}

	link, _ := env.registry.Get("go")
	if link.ClickCount != 1 || link.Clicks[0].Source != "Reddit" || link.Clicks[0].Location != "CA" {
		t.Errorf("click not recorded as expected: %+v", link.Clicks)
	}

	env.now = env.now.Add(6 * time.Minute)
	c, _ = env.context(http.MethodGet, "/go", "", "code", "go")
	if code := httpCode(t, env.links.Redirect(c)); code != http.StatusGone {
		t.Errorf("expired status = %d; want 410", code)
	}

	c, _ = env.context(http.MethodGet, "/nope", "", "code", "nope")
	if code := httpCode(t, env.links.Redirect(c)); code != http.StatusNotFound {
		t.Errorf("missing status = %d; want 404", code)
	}

	link, _ = env.registry.Get("go")
	if link.ClickCount != 1 {
		t.Errorf("ClickCount = %d after failed redirects; want 1", link.ClickCount)
	}
}

func TestListClicks(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"url": "https://example.com", "custom_code": "hot"}`)

	for _, country := range []string{"US", "DE", "JP"} {
		c, _ := env.context(http.MethodGet, "/hot", "", "code", "hot")
		c.Request().Header.Set("CF-IPCountry", country)
		if err := env.links.Redirect(c); err != nil {
			t.Fatalf("Redirect failed: %v", err)
		}
	}

	c, rec := env.context(http.MethodGet, "/api/links/hot/clicks?limit=2", "", "ref", "hot")
	if err := env.links.ListClicks(c); err != nil {
		t.Fatalf("ListClicks failed: %v", err)
	}

	var resp ClicksResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Total != 3 || len(resp.Clicks) != 2 {
		t.Fatalf("total = %d len = %d; want 3, 2", resp.Total, len(resp.Clicks))
	}
	if resp.Clicks[0].Location != "JP" || resp.Clicks[1].Location != "DE" {
		t.Errorf("clicks not newest first: %+v", resp.Clicks)
	}

	c, _ = env.context(http.MethodGet, "/api/links/hot/clicks?limit=-2", "", "ref", "hot")
	if code := httpCode(t, env.links.ListClicks(c)); code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d; want 400", code)
	}
}

func TestAnalyticsReport(t *testing.T) {
	env := newTestEnv(t)
	for i := range 3 {
		env.create(t, fmt.Sprintf(`{"url": "https://example.com/%d", "custom_code": "c%d"}`, i, i))
		env.now = env.now.Add(time.Second)
	}
	for _, code := range []string{"c0", "c0", "c2"} {
		c, _ := env.context(http.MethodGet, "/"+code, "", "code", code)
		if err := env.links.Redirect(c); err != nil {
			t.Fatalf("Redirect failed: %v", err)
		}
	}

	c, rec := env.context(http.MethodGet, "/api/analytics?limit=2", "")
	if err := env.stats.Report(c); err != nil {
		t.Fatalf("Report failed: %v", err)
	}

	var report analytics.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("bad body: %v", err)
	}

	wantTotals := analytics.Totals{LinkCount: 3, TotalClicks: 3, ActiveCount: 3}
	if report.Totals != wantTotals {
		t.Errorf("totals = %+v; want %+v", report.Totals, wantTotals)
	}
	if len(report.TopClicks) != 2 || report.TopClicks[0].Code != "c2" || report.TopClicks[1].Code != "c1" {
		t.Errorf("top clicks = %+v; want c2, c1", report.TopClicks)
	}
	if report.BySource[tagging.SourceDirect] != 3 || report.ByLocation[tagging.LocationUnknown] != 3 {
		t.Errorf("breakdowns = %v / %v", report.BySource, report.ByLocation)
	}

	c, _ = env.context(http.MethodGet, "/api/analytics?limit=abc", "")
	if code := httpCode(t, env.stats.Report(c)); code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d; want 400", code)
	}
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{internal.ErrInvalidURL, http.StatusBadRequest},
		{internal.ErrInvalidValidityPeriod, http.StatusBadRequest},
		{fmt.Errorf("%w: x", internal.ErrCodeConflict), http.StatusConflict},
		{internal.ErrCapacityExceeded, http.StatusUnprocessableEntity},
		{internal.ErrCodeSpaceExhausted, http.StatusServiceUnavailable},
		{internal.ErrNotFound, http.StatusNotFound},
		{internal.ErrExpired, http.StatusGone},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			he := toHTTPError(tt.err)
			if he.Code != tt.want {
				t.Errorf("code = %d; want %d", he.Code, tt.want)
			}
			if tt.want == http.StatusInternalServerError && he.Message != "internal server error" {
				t.Errorf("500 leaked message %v", he.Message)
			}
		})
	}
}

func TestErrorHandler(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.context(http.MethodGet, "/api/links/x", "")
	ErrorHandler(toHTTPError(fmt.Errorf("%w: x", internal.ErrNotFound)), c)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["error"] != "link not found: x" {
		t.Errorf("error = %q; want %q", body["error"], "link not found: x")
	}
}

func TestRedirect_LogsCode(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	var buf bytes.Buffer
	if err := logger.SetupWriter(&buf, "info", false); err != nil {
		t.Fatalf("SetupWriter failed: %v", err)
	}

	env := newTestEnv(t)
	env.create(t, `{"url": "https://example.com/a", "custom_code": "logged"}`)
	buf.Reset()

	c, _ := env.context(http.MethodGet, "/logged", "", "code", "logged")
	if err := env.links.Redirect(c); err != nil {
		t.Fatalf("Redirect failed: %v", err)
	}

	if !strings.Contains(buf.String(), `"code":"logged"`) || !strings.Contains(buf.String(), `"target":"https://example.com/a"`) {
		t.Errorf("redirect log missing code or target: %s", buf.String())
	}
}
