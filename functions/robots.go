package functions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/pollenjp/ipa-shiken-fetcher/logger"
)

// ErrDisallowedByRobots is returned when robots.txt forbids fetching a page.
var ErrDisallowedByRobots = errors.New("disallowed by robots.txt")

// RobotsChecker answers whether a URL may be fetched. robots.txt is fetched
// once per origin and cached for the life of the checker; 4xx answers allow
// everything and 5xx answers disallow everything.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	logger    logger.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

func NewRobotsChecker(client *http.Client, userAgent string, log logger.Logger) *RobotsChecker {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		logger:    log,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Check returns nil when target may be fetched, an error wrapping
// ErrDisallowedByRobots when it may not, and any other error when robots.txt
// could not be retrieved.
func (r *RobotsChecker) Check(ctx context.Context, target *url.URL) error {
	origin := target.Scheme + "://" + target.Host

	data, err := r.rules(ctx, origin)
	if err != nil {
		return err
	}

	if !data.TestAgent(target.RequestURI(), r.userAgent) {
		return fmt.Errorf("%w: %s", ErrDisallowedByRobots, target.Redacted())
	}
	return nil
}

func (r *RobotsChecker) rules(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, ok := r.cache[origin]
	r.mu.RUnlock()
	if ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("create robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt for %s: %w", origin, err)
	}

	r.logger.Debug("robots.txt loaded",
		logger.String("origin", origin),
		logger.Int("status", resp.StatusCode))

	r.mu.Lock()
	r.cache[origin] = data
	r.mu.Unlock()

	return data, nil
}
