package functions_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollenjp/ipa-shiken-fetcher/functions"
)

func TestNewTransport_Direct(t *testing.T) {
	t.Parallel()

	transport, err := functions.NewTransport("", "", "")
	require.NoError(t, err)
	assert.Nil(t, transport.DialContext)
	assert.NotNil(t, transport.Proxy)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	resp, err := (&http.Client{Transport: transport}).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewTransport_SOCKS5(t *testing.T) {
	t.Parallel()

	transport, err := functions.NewTransport("127.0.0.1:1080", "user", "secret")
	require.NoError(t, err)
	assert.NotNil(t, transport.DialContext)
	assert.Nil(t, transport.Proxy)
}
