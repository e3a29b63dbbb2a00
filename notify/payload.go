// Package notify turns item records into Slack block-kit payloads and posts
// them to an incoming webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pollenjp/ipa-shiken-fetcher/models"
)

// ErrMalformedPayload is returned by Parse when the blocks do not have the
// header, divider, section shape produced by Format.
var ErrMalformedPayload = errors.New("malformed payload")

// Format builds the three block message: the title as a plain text header,
// a divider, then the text as an mrkdwn section. Both strings are used
// verbatim.
func Format(record models.ItemRecord) models.Payload {
	emoji := true
	return models.Payload{
		Blocks: []models.Block{
			{
				Type: models.BlockHeader,
				Text: &models.TextObject{Type: models.TextPlain, Text: record.Title, Emoji: &emoji},
			},
			{Type: models.BlockDivider},
			{
				Type: models.BlockSection,
				Text: &models.TextObject{Type: models.TextMarkdown, Text: record.Text},
			},
		},
	}
}

// Encode marshals the payload without HTML escaping, so "<", ">" and "&"
// reach Slack as written. Invalid UTF-8 comes out as U+FFFD.
func Encode(payload models.Payload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Parse recovers the record from an encoded payload.
func Parse(data []byte) (models.ItemRecord, error) {
	var payload models.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.ItemRecord{}, fmt.Errorf("decode payload: %w", err)
	}

	if len(payload.Blocks) != 3 {
		return models.ItemRecord{}, fmt.Errorf("%w: want 3 blocks, got %d", ErrMalformedPayload, len(payload.Blocks))
	}

	header, divider, section := payload.Blocks[0], payload.Blocks[1], payload.Blocks[2]
	switch {
	case header.Type != models.BlockHeader || header.Text == nil:
		return models.ItemRecord{}, fmt.Errorf("%w: first block is not a header", ErrMalformedPayload)
	case divider.Type != models.BlockDivider:
		return models.ItemRecord{}, fmt.Errorf("%w: second block is not a divider", ErrMalformedPayload)
	case section.Type != models.BlockSection || section.Text == nil:
		return models.ItemRecord{}, fmt.Errorf("%w: third block is not a section", ErrMalformedPayload)
	}

	return models.ItemRecord{Title: header.Text.Text, Text: section.Text.Text}, nil
}
