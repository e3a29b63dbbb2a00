package models

import (
	"net/url"
	"time"
)

// Page is a fetched HTML document together with the URL it was served from
type Page struct {
	URL          *url.URL      `json:"-"`
	HTML         string        `json:"html"`
	StatusCode   int           `json:"status_code"`
	ContentType  string        `json:"content_type"`
	ResponseTime time.Duration `json:"response_time"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

// ItemRecord is the single exam item extracted from a page
type ItemRecord struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Payload is the Slack block-kit message posted to the webhook
type Payload struct {
	Blocks []Block `json:"blocks"`
}

type Block struct {
	Type string      `json:"type"`
	Text *TextObject `json:"text,omitempty"`
}

type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji *bool  `json:"emoji,omitempty"`
}

// Block and text object types used by the formatter
const (
	BlockHeader  = "header"
	BlockDivider = "divider"
	BlockSection = "section"

	TextPlain    = "plain_text"
	TextMarkdown = "mrkdwn"
)

// DeliveryStatus is the outcome of one fetch-extract-send step
type DeliveryStatus string

const (
	StatusSent        DeliveryStatus = "sent"
	StatusNoRecord    DeliveryStatus = "no_record"
	StatusFetchFailed DeliveryStatus = "fetch_failed"
	StatusBlocked     DeliveryStatus = "blocked"
	StatusSendFailed  DeliveryStatus = "send_failed"
)

// Delivery is one journal row
type Delivery struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	SourceID    string         `json:"source_id"`
	SourceURL   string         `json:"source_url"`
	Title       string         `json:"title"`
	Fingerprint string         `json:"fingerprint"`
	Status      DeliveryStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CycleSummary counts outcomes of one pass over the configured URLs
type CycleSummary struct {
	RunID    string        `json:"run_id"`
	Total    int           `json:"total"`
	Sent     int           `json:"sent"`
	NoRecord int           `json:"no_record"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}
