// Package trust maintains the set of request origins allowed through the
// public HTTP surface. The set is the union of operator-configured base
// origins and the URL variants of every admin-approved tenant domain, and is
// lazily reconciled from storage on a TTL.
package trust

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// TrustedHostSuffix marks hosts that are allowed without appearing in the
// approved set. Jira webhooks and embedded widgets originate there.
const TrustedHostSuffix = ".atlassian.net"

// OriginSource lists the currently admin-approved tenant domains.
type OriginSource interface {
	ApprovedDomains(ctx context.Context) ([]string, error)
}

// Options tunes cache behaviour. Zero values fall back to defaults.
type Options struct {
	TTL            time.Duration
	RefreshTimeout time.Duration
	BaseOrigins    []string
	Now            func() time.Time
}

const (
	defaultTTL            = 60 * time.Second
	defaultRefreshTimeout = 5 * time.Second
)

// Cache answers origin-allowed queries against an in-memory set refreshed
// from an OriginSource. All methods are safe for concurrent use.
type Cache struct {
	source OriginSource
	logger *slog.Logger

	ttl            time.Duration
	refreshTimeout time.Duration
	baseOrigins    []string
	now            func() time.Time

	mu          sync.RWMutex
	origins     map[string]struct{}
	lastRefresh time.Time
}

// Stats is a read-only snapshot of the cache for operational visibility.
type Stats struct {
	Size        int       `json:"size"`
	LastRefresh time.Time `json:"last_refresh"`
	Origins     []string  `json:"origins"`
}

// New builds a cache seeded with the base origins. The set is empty of
// tenant domains until the first Refresh.
func New(log *slog.Logger, source OriginSource, opts Options) *Cache {
	if log == nil {
		log = slog.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{
		source:         source,
		logger:         log.With(slog.String("service", "trust")),
		ttl:            opts.TTL,
		refreshTimeout: opts.RefreshTimeout,
		baseOrigins:    normalizeOrigins(opts.BaseOrigins),
		now:            opts.Now,
		origins:        map[string]struct{}{},
	}
	for _, origin := range c.baseOrigins {
		c.origins[origin] = struct{}{}
	}
	return c
}

// IsAllowed reports whether a request from origin may proceed. An empty
// origin means no Origin header (server-to-server or webhook caller) and is
// always allowed. When the TTL has elapsed the set is refreshed first, so a
// just-approved domain is seen at the cost of one storage round trip.
func (c *Cache) IsAllowed(ctx context.Context, origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}

	if c.expired() {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Error("origin refresh failed, serving stale set", slog.Any("error", err))
		}
	}

	normalized := normalizeOrigin(origin)

	c.mu.RLock()
	_, ok := c.origins[normalized]
	c.mu.RUnlock()
	if ok {
		return true
	}
	return hasTrustedSuffix(normalized)
}

// Refresh reconciles the full set from the source: base origins plus the
// four URL variants of every approved domain. On source failure the previous
// set is left untouched.
func (c *Cache) Refresh(ctx context.Context) error {
	refreshCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	domains, err := c.source.ApprovedDomains(refreshCtx)
	if err != nil {
		return err
	}

	next := make(map[string]struct{}, len(c.baseOrigins)+len(domains)*4)
	for _, origin := range c.baseOrigins {
		next[origin] = struct{}{}
	}
	for _, domain := range domains {
		for _, variant := range OriginVariants(domain) {
			next[variant] = struct{}{}
		}
	}

	c.mu.Lock()
	c.origins = next
	c.lastRefresh = c.now()
	c.mu.Unlock()

	c.logger.Debug("trusted origins reloaded", slog.Int("size", len(next)))
	return nil
}

// AddDomain inserts the domain's variants immediately, ahead of the next
// TTL refresh. Used after an administrative approval.
func (c *Cache) AddDomain(domain string) {
	variants := OriginVariants(domain)
	if len(variants) == 0 {
		return
	}
	c.mu.Lock()
	for _, variant := range variants {
		c.origins[variant] = struct{}{}
	}
	c.mu.Unlock()
	c.logger.Info("domain approved", slog.String("domain", domain))
}

// RemoveDomain deletes the domain's variants immediately.
func (c *Cache) RemoveDomain(domain string) {
	variants := OriginVariants(domain)
	c.mu.Lock()
	for _, variant := range variants {
		delete(c.origins, variant)
	}
	c.mu.Unlock()
	c.logger.Info("domain revoked", slog.String("domain", domain))
}

// Stats snapshots the current set.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	origins := make([]string, 0, len(c.origins))
	for origin := range c.origins {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return Stats{
		Size:        len(origins),
		LastRefresh: c.lastRefresh,
		Origins:     origins,
	}
}

func (c *Cache) expired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Sub(c.lastRefresh) > c.ttl
}

// OriginVariants expands an approved domain into the scheme/www variants
// that browsers may present as an Origin header.
func OriginVariants(domain string) []string {
	host := normalizeHost(domain)
	if host == "" {
		return nil
	}
	return []string{
		"http://" + host,
		"https://" + host,
		"http://www." + host,
		"https://www." + host,
	}
}

func normalizeHost(domain string) string {
	host := strings.ToLower(strings.TrimSpace(domain))
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, "/")
	return host
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		normalized := normalizeOrigin(origin)
		if normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}

func hasTrustedSuffix(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return strings.HasSuffix(origin, TrustedHostSuffix)
	}
	return strings.HasSuffix(parsed.Hostname(), TrustedHostSuffix)
}
