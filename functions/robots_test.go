package functions_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenjp/ipa-shiken-fetcher/functions"
	"github.com/pollenjp/ipa-shiken-fetcher/logger"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestRobotsChecker_Rules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		path    string
		allowed bool
	}{
		{"allowed path", http.StatusOK, "User-agent: *\nDisallow: /admin/\n", "/kakomon/", true},
		{"disallowed path", http.StatusOK, "User-agent: *\nDisallow: /admin/\n", "/admin/login", false},
		{"own agent group wins", http.StatusOK, "User-agent: IPAShikenFetcher\nDisallow: /\n\nUser-agent: *\nAllow: /\n", "/kakomon/", false},
		{"not found allows all", http.StatusNotFound, "", "/anything", true},
		{"server error disallows all", http.StatusServiceUnavailable, "", "/anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, _ := robotsServer(t, tt.status, tt.body)
			checker := functions.NewRobotsChecker(server.Client(), testUserAgent, logger.NewNop())

			err := checker.Check(context.Background(), mustParse(t, server.URL+tt.path))
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, functions.ErrDisallowedByRobots)
			}
		})
	}
}

func TestRobotsChecker_CachesPerOrigin(t *testing.T) {
	t.Parallel()

	server, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /admin/\n")
	checker := functions.NewRobotsChecker(server.Client(), testUserAgent, logger.NewNop())

	require.NoError(t, checker.Check(context.Background(), mustParse(t, server.URL+"/a")))
	require.NoError(t, checker.Check(context.Background(), mustParse(t, server.URL+"/b")))
	require.Error(t, checker.Check(context.Background(), mustParse(t, server.URL+"/admin/")))

	assert.Equal(t, int32(1), hits.Load())
}

func TestRobotsChecker_Unreachable(t *testing.T) {
	t.Parallel()

	server, _ := robotsServer(t, http.StatusOK, "")
	checker := functions.NewRobotsChecker(server.Client(), testUserAgent, logger.NewNop())
	target := mustParse(t, server.URL+"/kakomon/")
	server.Close()

	err := checker.Check(context.Background(), target)
	require.Error(t, err)
	assert.NotErrorIs(t, err, functions.ErrDisallowedByRobots)
}
