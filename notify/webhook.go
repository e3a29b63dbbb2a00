package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pollenjp/ipa-shiken-fetcher/logger"
	"github.com/pollenjp/ipa-shiken-fetcher/models"
	"github.com/pollenjp/ipa-shiken-fetcher/utils"
)

// maxDrainBytes is how much of a successful response is read so the
// connection can be reused.
const maxDrainBytes = 64 * 1024

// Sink posts payloads to a Slack-compatible incoming webhook.
type Sink struct {
	client   *http.Client
	webhook  *url.URL
	redacted string
	logger   logger.Logger
}

// NewSink returns a Sink that posts to webhook with client.
func NewSink(client *http.Client, webhook *url.URL, log logger.Logger) *Sink {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sink{
		client:   client,
		webhook:  webhook,
		redacted: utils.RedactPath(webhook),
		logger:   log,
	}
}

// Send formats record and posts it. Any non-2xx answer is returned as a
// *utils.StatusError. The webhook path never appears in errors or logs.
func (s *Sink) Send(ctx context.Context, record models.ItemRecord) error {
	body, err := Encode(Format(record))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = s.redacted
		}
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := utils.NewStatusError(resp)
		statusErr.URL = s.redacted
		return statusErr
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	s.logger.Debug("webhook accepted payload",
		logger.String("webhook", s.redacted),
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)))
	return nil
}
