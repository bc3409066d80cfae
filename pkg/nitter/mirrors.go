package nitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// HTTPDoer is the part of *http.Client the discovery sources need.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MirrorSource discovers mirror origins from one remote listing.
type MirrorSource interface {
	Name() string
	Discover(ctx context.Context) ([]string, error)
}

// Directory lists mirror candidates. It is safe for concurrent use.
type Directory struct {
	sources   []MirrorSource
	defaults  []string
	blacklist []string
	timeout   time.Duration
	ttl       time.Duration
	logger    *logrus.Logger
	now       func() time.Time

	mu       sync.RWMutex
	cached   []string
	cachedAt time.Time
}

// NewDirectory builds a directory over the configured sources, fetching them through client.
func NewDirectory(config *Config, client HTTPDoer) *Directory {
	sources := make([]MirrorSource, 0, len(config.Sources))
	for _, spec := range config.Sources {
		switch spec.Format {
		case FormatJSON:
			sources = append(sources, NewJSONSource(spec.URL, client))
		case FormatHTML:
			sources = append(sources, NewWikiSource(spec.URL, client))
		}
	}
	return NewDirectoryWithSources(config, sources...)
}

// NewDirectoryWithSources builds a directory that queries sources in the given priority order.
func NewDirectoryWithSources(config *Config, sources ...MirrorSource) *Directory {
	return &Directory{
		sources:   sources,
		defaults:  config.DefaultMirrors,
		blacklist: config.Blacklist,
		timeout:   config.DiscoveryTimeout,
		ttl:       config.MirrorTTL,
		logger:    config.Logger,
		now:       time.Now,
	}
}

// ListCandidates returns the mirrors to try. The list is never empty: when every discovery
// source fails the hardcoded defaults are returned. The caller owns the returned slice.
func (d *Directory) ListCandidates(ctx context.Context) []string {
	if cached := d.fromCache(); cached != nil {
		return cached
	}

	log := d.logger.WithField("method", "ListCandidates")

	for _, source := range d.sources {
		mirrors, err := d.discover(ctx, source)
		if err != nil {
			log.WithFields(logrus.Fields{
				"source": source.Name(),
				"error":  err,
			}).Debug("Mirror discovery source failed")
			continue
		}
		if len(mirrors) == 0 {
			log.WithField("source", source.Name()).Debug("Mirror discovery source yielded nothing usable")
			continue
		}

		log.WithFields(logrus.Fields{
			"source":  source.Name(),
			"mirrors": len(mirrors),
		}).Debug("Discovered mirrors")
		d.store(mirrors)
		return append([]string(nil), mirrors...)
	}

	log.Debug("Using default mirror list")
	return d.defaultCandidates()
}

// Invalidate drops the cached discovery result.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = nil
}

func (d *Directory) discover(ctx context.Context, source MirrorSource) (mirrors []string, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("discovery source panicked: %v", r)
		}
	}()

	raw, err := source.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return d.clean(raw), nil
}

// clean normalizes, de-duplicates and filters discovered origins, keeping first-seen order.
func (d *Directory) clean(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, candidate := range raw {
		origin, ok := NormalizeOrigin(candidate)
		if !ok || d.blacklisted(origin) {
			continue
		}
		if _, dup := seen[origin]; dup {
			continue
		}
		seen[origin] = struct{}{}
		out = append(out, origin)
	}
	return out
}

func (d *Directory) defaultCandidates() []string {
	out := d.clean(d.defaults)
	if len(out) == 0 {
		d.logger.Warn("Blacklist removes every default mirror, ignoring it for the defaults")
		for _, m := range d.defaults {
			if origin, ok := NormalizeOrigin(m); ok {
				out = append(out, origin)
			}
		}
	}
	return out
}

func (d *Directory) blacklisted(origin string) bool {
	for _, b := range d.blacklist {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" && strings.Contains(origin, b) {
			return true
		}
	}
	return false
}

func (d *Directory) fromCache() []string {
	if d.ttl <= 0 {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.cached == nil || d.now().Sub(d.cachedAt) > d.ttl {
		return nil
	}
	return append([]string(nil), d.cached...)
}

func (d *Directory) store(mirrors []string) {
	if d.ttl <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = append([]string(nil), mirrors...)
	d.cachedAt = d.now()
}

// NormalizeOrigin turns a discovered host or URL into an https origin without a path.
// Bare hosts get the https scheme; plain http, local hosts and unparsable input are rejected.
func NormalizeOrigin(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimRight(raw, "/")
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" || u.User != nil {
		return "", false
	}
	host := strings.ToLower(u.Host)
	if strings.ContainsAny(host, " \t") || isLocalHost(u.Hostname()) {
		return "", false
	}
	return "https://" + host, true
}

// Shuffle returns a shuffled copy of mirrors.
func Shuffle(mirrors []string) []string {
	out := append([]string(nil), mirrors...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// JSONSource reads a JSON listing: either an object keyed by mirror host or an array of hosts.
type JSONSource struct {
	url    string
	client HTTPDoer
}

// NewJSONSource creates a JSON discovery source.
func NewJSONSource(url string, client HTTPDoer) *JSONSource {
	return &JSONSource{url: url, client: client}
}

func (s *JSONSource) Name() string {
	return s.url
}

func (s *JSONSource) Discover(ctx context.Context) ([]string, error) {
	body, err := getBody(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}

	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding mirror listing: %w", err)
	}

	var hosts []string
	switch v := payload.(type) {
	case map[string]interface{}:
		for host := range v {
			hosts = append(hosts, host)
		}
	case []interface{}:
		for _, item := range v {
			switch entry := item.(type) {
			case string:
				hosts = append(hosts, entry)
			case map[string]interface{}:
				if u, ok := entry["url"].(string); ok {
					hosts = append(hosts, u)
				}
			}
		}
	default:
		return nil, fmt.Errorf("unexpected mirror listing shape %T", payload)
	}
	return hosts, nil
}

// WikiSource scrapes https links from a human-maintained HTML listing.
type WikiSource struct {
	url    string
	client HTTPDoer
}

// NewWikiSource creates an HTML discovery source.
func NewWikiSource(url string, client HTTPDoer) *WikiSource {
	return &WikiSource{url: url, client: client}
}

func (s *WikiSource) Name() string {
	return s.url
}

// wikiExcluded are link hosts on the listing page that are not mirrors.
var wikiExcluded = []string{"github", "ssllabs"}

func (s *WikiSource) Discover(ctx context.Context) ([]string, error) {
	body, err := getBody(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing mirror listing: %w", err)
	}

	var hosts []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "https://") {
			return
		}
		for _, excluded := range wikiExcluded {
			if strings.Contains(href, excluded) {
				return
			}
		}
		hosts = append(hosts, href)
	})
	return hosts, nil
}

func getBody(ctx context.Context, client HTTPDoer, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", browserHeaders["User-Agent"])

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching mirror listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror listing returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading mirror listing: %w", err)
	}
	return body, nil
}
