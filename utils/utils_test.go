package utils_test

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenjp/ipa-shiken-fetcher/models"
	"github.com/pollenjp/ipa-shiken-fetcher/utils"
)

func TestCanonicalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"drops fragment", "https://www.ap-siken.com/kakomon/21_haru/q31.html#ans", "https://www.ap-siken.com/kakomon/21_haru/q31.html"},
		{"keeps query", "https://www.ap-siken.com/apkakomon.php?q=31", "https://www.ap-siken.com/apkakomon.php?q=31"},
		{"lower-cases host", "HTTPS://WWW.AP-SIKEN.COM/", "https://www.ap-siken.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := utils.CanonicalizeURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalizeURL_Invalid(t *testing.T) {
	t.Parallel()

	_, err := utils.CanonicalizeURL("http://[::1")
	assert.Error(t, err)
}

func TestSourceID_StableAcrossFragments(t *testing.T) {
	t.Parallel()

	a := utils.SourceID("https://www.ap-siken.com/")
	b := utils.SourceID("https://WWW.ap-siken.com/#top")
	c := utils.SourceID("https://www.fe-siken.com/")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestNewRunID_Unique(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, utils.NewRunID(), utils.NewRunID())
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	r1 := models.ItemRecord{Title: "ab", Text: "c"}
	r2 := models.ItemRecord{Title: "a", Text: "bc"}

	assert.Len(t, utils.Fingerprint(r1), 64)
	assert.Equal(t, utils.Fingerprint(r1), utils.Fingerprint(r1))
	assert.NotEqual(t, utils.Fingerprint(r1), utils.Fingerprint(r2))
}

func TestRedactPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"https://hooks.slack.com/services/T000/B000/secret", "https://hooks.slack.com/***"},
		{"https://hooks.example?token=secret", "https://hooks.example/***"},
		{"https://hooks.example", "https://hooks.example"},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, utils.RedactPath(u))
	}
	assert.Empty(t, utils.RedactPath(nil))
}
