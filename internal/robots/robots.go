// Package robots decides whether a document URL may be downloaded under the
// site's robots.txt.
package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrDisallowed means robots.txt forbids the path for our user agent.
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrPrivateHost means the URL points at a loopback or private address.
	ErrPrivateHost = errors.New("private host not allowed")
)

// maxRobotsBytes caps how much of a robots.txt body is read.
const maxRobotsBytes = 512 << 10

// Checker fetches robots.txt once per origin and caches the parsed rules.
type Checker struct {
	HTTPClient *http.Client
	UserAgent  string
	// TTL bounds how long rules are reused. Zero means 30 minutes.
	TTL time.Duration
	// AllowPrivateHosts permits loopback and private addresses (tests).
	AllowPrivateHosts bool

	now    func() time.Time
	flight singleflight.Group
	mu     sync.Mutex
	rules  map[string]cached
}

type cached struct {
	rules   Rules
	expires time.Time
}

// Allowed returns nil when rawURL may be fetched. A missing robots.txt (any
// 4xx) allows everything; a server error or an unreachable host disallows,
// following RFC 9309.
func (c *Checker) Allowed(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" || u.Host == "" {
		return fmt.Errorf("unsupported url %q", rawURL)
	}
	if !c.AllowPrivateHosts && isPrivateHost(u.Hostname()) {
		return fmt.Errorf("%w: %s", ErrPrivateHost, u.Hostname())
	}
	origin := scheme + "://" + strings.ToLower(u.Host)
	rules, err := c.rulesFor(ctx, origin)
	if err != nil {
		return err
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	if !rules.Allows(c.UserAgent, p) {
		return fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
	}
	return nil
}

func (c *Checker) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Checker) rulesFor(ctx context.Context, origin string) (Rules, error) {
	c.mu.Lock()
	if e, ok := c.rules[origin]; ok && c.clock().Before(e.expires) {
		c.mu.Unlock()
		return e.rules, nil
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do(origin, func() (any, error) {
		rules, err := c.fetch(ctx, origin+"/robots.txt")
		if err != nil {
			return Rules{}, err
		}
		ttl := c.TTL
		if ttl <= 0 {
			ttl = 30 * time.Minute
		}
		c.mu.Lock()
		if c.rules == nil {
			c.rules = make(map[string]cached)
		}
		c.rules[origin] = cached{rules: rules, expires: c.clock().Add(ttl)}
		c.mu.Unlock()
		return rules, nil
	})
	if err != nil {
		return Rules{}, err
	}
	return v.(Rules), nil
}

func (c *Checker) fetch(ctx context.Context, robotsURL string) (Rules, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return Rules{}, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Rules{}, fmt.Errorf("%w: robots.txt unreachable: %v", ErrDisallowed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
		if err != nil {
			return Rules{}, fmt.Errorf("read robots.txt: %w", err)
		}
		log.Debug().Str("stage", "robots").Str("url", robotsURL).Int("bytes", len(body)).Msg("robots.txt fetched")
		return Parse(string(body)), nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Rules{}, nil
	default:
		return Rules{}, fmt.Errorf("%w: robots.txt status %d", ErrDisallowed, resp.StatusCode)
	}
}

func isPrivateHost(host string) bool {
	h := strings.ToLower(strings.Trim(host, "[]"))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
	}
	return false
}
