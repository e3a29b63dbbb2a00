package extractor_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenjp/ipa-shiken-fetcher/extractor"
)

const testBaseURL = "https://www.ap-siken.com/kakomon/21_haru/index.html"

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestResolve_Relative(t *testing.T) {
	t.Parallel()

	base := mustParse(t, testBaseURL)

	tests := []struct {
		name string
		href string
		want string
	}{
		{"root relative", "/kakomon/21_haru/q31.html", "https://www.ap-siken.com/kakomon/21_haru/q31.html"},
		{"path relative", "q31.html", "https://www.ap-siken.com/kakomon/21_haru/q31.html"},
		{"dot segments", "../20_aki/q1.html", "https://www.ap-siken.com/kakomon/20_aki/q1.html"},
		{"query only", "?page=2", "https://www.ap-siken.com/kakomon/21_haru/index.html?page=2"},
		{"fragment only", "#ans", "https://www.ap-siken.com/kakomon/21_haru/index.html#ans"},
		{"scheme relative", "//img.ap-siken.com/kakomon/21_haru/q31.png", "https://img.ap-siken.com/kakomon/21_haru/q31.png"},
		{"surrounding whitespace", "  /kakomon/21_haru/q31.html\n", "https://www.ap-siken.com/kakomon/21_haru/q31.html"},
		{"embedded newline", "/kakomon/21_haru/\nq31.html", "https://www.ap-siken.com/kakomon/21_haru/q31.html"},
		{"image", "img/31.gif", "https://www.ap-siken.com/kakomon/21_haru/img/31.gif"},
		{"valid escape kept", "%E5%95%8F31.html", "https://www.ap-siken.com/kakomon/21_haru/%E5%95%8F31.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := extractor.Resolve(base, tt.href)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_RelativeInheritsSchemeAndHost(t *testing.T) {
	t.Parallel()

	bases := []string{
		"https://www.ap-siken.com/",
		"http://www.fe-siken.com/kakomon/05_menjo/",
		"https://localhost:8443/a/b/c.html?x=1",
	}
	hrefs := []string{"q1.html", "/q1.html", "../q1.html", "?q=1", "#top", "./img/a.png"}

	for _, rawBase := range bases {
		base := mustParse(t, rawBase)
		for _, href := range hrefs {
			got, err := extractor.Resolve(base, href)
			require.NoError(t, err, "base=%s href=%s", rawBase, href)

			resolved := mustParse(t, got)
			assert.True(t, resolved.IsAbs(), got)
			assert.Equal(t, base.Scheme, resolved.Scheme, got)
			assert.Equal(t, base.Host, resolved.Host, got)
		}
	}
}

func TestResolve_AbsoluteIgnoresBase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		href string
		want string
	}{
		{"https://www.ap-siken.com/kakomon/21_haru/q31.html", "https://www.ap-siken.com/kakomon/21_haru/q31.html"},
		{"HTTPS://WWW.AP-SIKEN.COM", "https://www.ap-siken.com/"},
		{"http://example.com?x=1", "http://example.com/?x=1"},
		{"mailto:info@ap-siken.com", "mailto:info@ap-siken.com"},
		{"https://www.ap-siken.com/a/../kakomon/./q1.html", "https://www.ap-siken.com/kakomon/q1.html"},
		{"https://www.ap-siken.com:443/kakomon/q1.html", "https://www.ap-siken.com/kakomon/q1.html"},
		{"http://www.ap-siken.com:80/kakomon/q1.html", "http://www.ap-siken.com/kakomon/q1.html"},
		{"http://www.ap-siken.com:443/kakomon/q1.html", "http://www.ap-siken.com:443/kakomon/q1.html"},
		{"https://www.ap-siken.com:/q1.html", "https://www.ap-siken.com/q1.html"},
		{"https://www.ap-siken.com/kakomon/100%.html", "https://www.ap-siken.com/kakomon/100%.html"},
	}

	bases := []*url.URL{
		mustParse(t, testBaseURL),
		mustParse(t, "http://other.example.org/deep/path/"),
		nil,
	}

	for _, tt := range tests {
		for _, base := range bases {
			got, err := extractor.Resolve(base, tt.href)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		}
	}
}

func TestResolve_Unresolvable(t *testing.T) {
	t.Parallel()

	base := mustParse(t, testBaseURL)

	tests := []struct {
		name string
		base *url.URL
		href string
	}{
		{"empty", base, ""},
		{"blank", base, " \t "},
		{"control character", base, "/kako\x7fmon.html"},
		{"nul byte", base, "/kako\x00mon.html"},
		{"relative without base", nil, "q31.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := extractor.Resolve(tt.base, tt.href)
			require.ErrorIs(t, err, extractor.ErrUnresolvable)
			assert.Empty(t, got)
		})
	}
}

func TestResolve_StrayPercentKept(t *testing.T) {
	t.Parallel()

	base := mustParse(t, "https://www.ap-siken.com/kakomon/21_haru/")

	tests := []struct {
		name string
		href string
		want string
	}{
		{"root relative", "/kakomon/100%.html", "https://www.ap-siken.com/kakomon/100%.html"},
		{"path relative", "img/50%off.png", "https://www.ap-siken.com/kakomon/21_haru/img/50%off.png"},
		{"non hex escape", "/kakomon/%zz.html", "https://www.ap-siken.com/kakomon/%zz.html"},
		{"trailing percent", "q31%", "https://www.ap-siken.com/kakomon/21_haru/q31%"},
		{"mixed with valid escape", "%E5%95%8F_100%.html", "https://www.ap-siken.com/kakomon/21_haru/%E5%95%8F_100%.html"},
		{"dot segments", "../20_aki/100%.html", "https://www.ap-siken.com/kakomon/20_aki/100%.html"},
		{"fragment", "q31.html#100%", "https://www.ap-siken.com/kakomon/21_haru/q31.html#100%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := extractor.Resolve(base, tt.href)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
