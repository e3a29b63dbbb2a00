package functions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/pollenjp/ipa-shiken-fetcher/logger"
	"github.com/pollenjp/ipa-shiken-fetcher/models"
	"github.com/pollenjp/ipa-shiken-fetcher/utils"
)

const (
	maxBodyBytes = 10 * 1024 * 1024
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// ErrNotHTML is returned for responses whose Content-Type is not a document.
var ErrNotHTML = errors.New("response is not html")

// Fetcher downloads pages for extraction.
type Fetcher struct {
	client    *http.Client
	userAgent string
	robots    *RobotsChecker
	logger    logger.Logger
}

// maxRedirects matches the net/http default.
const maxRedirects = 10

// NewFetcher returns a Fetcher. A nil robots checker disables robots.txt
// checks; otherwise every redirect target is checked too.
func NewFetcher(client *http.Client, userAgent string, robots *RobotsChecker, log logger.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNop()
	}
	if robots != nil {
		client = withRobotsRedirects(client, robots)
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		robots:    robots,
		logger:    log,
	}
}

// FetchPage GETs target and returns its body decoded to UTF-8. The returned
// page URL is the one the body was finally served from, after redirects,
// so relative references resolve the way a browser would resolve them.
func (f *Fetcher) FetchPage(ctx context.Context, target *url.URL) (models.Page, error) {
	if f.robots != nil {
		if err := f.robots.Check(ctx, target); err != nil {
			return models.Page{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return models.Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", f.userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	responseTime := time.Since(start)
	if err != nil {
		return models.Page{}, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Page{}, utils.NewStatusError(resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContent(contentType) {
		return models.Page{}, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), contentType)
	if err != nil {
		return models.Page{}, fmt.Errorf("decode body: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return models.Page{}, fmt.Errorf("read body: %w", err)
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	f.logger.Debug("page fetched",
		logger.String("url", finalURL.String()),
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)),
		logger.Duration("response_time", responseTime))

	return models.Page{
		URL:          finalURL,
		HTML:         string(body),
		StatusCode:   resp.StatusCode,
		ContentType:  contentType,
		ResponseTime: responseTime,
		FetchedAt:    start,
	}, nil
}

// withRobotsRedirects returns a copy of client that refuses to follow a
// redirect robots.txt disallows.
func withRobotsRedirects(client *http.Client, robots *RobotsChecker) *http.Client {
	checked := *client
	next := client.CheckRedirect
	checked.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if next != nil {
			if err := next(req, via); err != nil {
				return err
			}
		} else if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return robots.Check(req.Context(), req.URL)
	}
	return &checked
}

// isHTMLContent treats a missing Content-Type as HTML; some exam mirrors
// omit it.
func isHTMLContent(contentType string) bool {
	if contentType == "" {
		return true
	}

	lowerType := strings.ToLower(contentType)
	for _, htmlType := range []string{"text/html", "application/xhtml+xml", "text/plain"} {
		if strings.Contains(lowerType, htmlType) {
			return true
		}
	}
	return false
}
