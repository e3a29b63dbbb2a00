package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/pollenjp/ipa-shiken-fetcher/models"
)

// CanonicalizeURL drops the fragment and lower-cases scheme and host.
// The query is kept: exam pages are often addressed by it.
func CanonicalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String(), nil
}

// SourceID derives a stable UUID (v5, URL namespace) for a fetch URL so journal
// rows for the same page group together across runs.
func SourceID(raw string) string {
	canonical, err := CanonicalizeURL(raw)
	if err != nil {
		canonical = raw
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(canonical)).String()
}

// NewRunID identifies one cycle over the configured URLs.
func NewRunID() string {
	return uuid.NewString()
}

// Fingerprint is the hex SHA-256 of a record, used to spot repeated items in
// the journal.
func Fingerprint(record models.ItemRecord) string {
	h := sha256.New()
	h.Write([]byte(record.Title))
	h.Write([]byte{0})
	h.Write([]byte(record.Text))
	return hex.EncodeToString(h.Sum(nil))
}

// RedactPath keeps only scheme and host. Webhook URLs carry their secret in
// the path, so they are logged through this.
func RedactPath(u *url.URL) string {
	if u == nil {
		return ""
	}
	if u.Path == "" && u.RawQuery == "" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/***"
}
