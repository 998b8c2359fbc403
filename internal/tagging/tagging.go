package tagging

import (
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"github.com/abdusco/shortlink/internal"
)

const (
	SourceDirect    = "Direct"
	LocationUnknown = "Unknown"
)

// Tagger supplies the analytics tag recorded with each redirect.
type Tagger interface {
	Tag(r *http.Request) internal.Tag
}

// New returns the tagger registered under name, defaulting to headers.
func New(name string) Tagger {
	if name == "random" {
		return RandomTagger{}
	}
	return HeaderTagger{}
}

var knownSources = []struct {
	hosts []string
	name  string
}{
	{[]string{"google."}, "Google"},
	{[]string{"facebook.com", "fb.com", "fb.me"}, "Facebook"},
	{[]string{"twitter.com", "t.co", "x.com"}, "Twitter"},
	{[]string{"linkedin.com", "lnkd.in"}, "LinkedIn"},
	{[]string{"reddit.com", "redd.it"}, "Reddit"},
}

var locationHeaders = []string{"CF-IPCountry", "X-Country-Code", "X-Geo-Location"}

// HeaderTagger infers the source from the Referer header and the location
// from geo headers set by a CDN or reverse proxy.
type HeaderTagger struct{}

func (HeaderTagger) Tag(r *http.Request) internal.Tag {
	return internal.Tag{
		Source:   sourceFromReferer(r.Referer()),
		Location: locationFromHeaders(r.Header),
	}
}

func sourceFromReferer(referer string) string {
	if referer == "" {
		return SourceDirect
	}

	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return SourceDirect
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, known := range knownSources {
		for _, h := range known.hosts {
			if host == h || strings.HasSuffix(host, "."+h) || (strings.HasSuffix(h, ".") && strings.Contains("."+host, "."+h)) {
				return known.name
			}
		}
	}
	return host
}

func locationFromHeaders(h http.Header) string {
	for _, name := range locationHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" && v != "XX" {
			return v
		}
	}
	return LocationUnknown
}

var (
	randomSources   = []string{"Direct", "Google", "Facebook", "Twitter", "LinkedIn", "Reddit"}
	randomLocations = []string{"New York, US", "London, UK", "Tokyo, JP", "Sydney, AU", "Toronto, CA", "Berlin, DE"}
)

// RandomTagger fabricates tags for demos where no real request data exists.
type RandomTagger struct{}

func (RandomTagger) Tag(*http.Request) internal.Tag {
	return internal.Tag{
		Source:   randomSources[rand.IntN(len(randomSources))],
		Location: randomLocations[rand.IntN(len(randomLocations))],
	}
}
