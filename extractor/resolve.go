package extractor

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnresolvable is wrapped by every Resolve failure.
var ErrUnresolvable = errors.New("unresolvable reference")

// stripTabNewline removes ASCII tab and newline anywhere in a reference, as
// browsers do before parsing.
var stripTabNewline = strings.NewReplacer("\t", "", "\n", "", "\r", "")

// strayPercent stands in for a "%" that does not start an escape while the
// reference goes through net/url, which rejects such input. It only uses
// unreserved characters so it is printed back untouched.
const strayPercent = "~stray-pct~"

// Resolve turns href into an absolute URL string. Absolute hrefs are returned
// normalized and base is ignored; anything else is resolved against base.
// A "%" that does not start a valid escape is kept as written.
//
// Empty references, references with control characters, and relative
// references without a base fail with ErrUnresolvable. Callers skip such
// entries.
func Resolve(base *url.URL, href string) (string, error) {
	ref := strings.TrimFunc(href, func(r rune) bool { return r <= ' ' })
	ref = stripTabNewline.Replace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrUnresolvable)
	}

	parsed, err := url.Parse(ref)
	marked := false
	if err != nil && strings.Contains(ref, "%") {
		var retryErr error
		if parsed, retryErr = url.Parse(markStrayPercents(ref)); retryErr == nil {
			err, marked = nil, true
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnresolvable, err)
	}

	var resolved *url.URL
	switch {
	case parsed.IsAbs():
		resolved = parsed.ResolveReference(&url.URL{})
	case base == nil:
		return "", fmt.Errorf("%w: relative reference %q without base", ErrUnresolvable, ref)
	default:
		resolved = base.ResolveReference(parsed)
	}

	out := normalize(resolved).String()
	if marked {
		out = strings.ReplaceAll(out, strayPercent, "%")
	}
	return out, nil
}

// markStrayPercents replaces every "%" not followed by two hex digits.
func markStrayPercents(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && (i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2])) {
			b.WriteString(strayPercent)
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// defaultPorts are dropped from the host, so ":443" on https prints nothing.
var defaultPorts = map[string]string{"http": "80", "https": "443"}

// normalize lower-cases scheme and host, drops the scheme's default port and
// gives hierarchical web URLs a root path, so "HTTPS://Example.com:443" and
// "https://example.com/" print the same. Dot segments are already gone after
// ResolveReference.
func normalize(u *url.URL) *url.URL {
	out := *u
	out.Scheme = strings.ToLower(out.Scheme)
	out.Host = strings.ToLower(out.Host)

	if port, ok := defaultPorts[out.Scheme]; ok {
		out.Host = strings.TrimSuffix(out.Host, ":"+port)
		out.Host = strings.TrimSuffix(out.Host, ":")
	}

	if (out.Scheme == "http" || out.Scheme == "https") &&
		out.Host != "" && out.Opaque == "" && out.Path == "" {
		out.Path = "/"
		out.RawPath = ""
	}

	return &out
}
