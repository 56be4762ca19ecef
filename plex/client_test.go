package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret-token"

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...func(*ClientConfig)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := ClientConfig{BaseURL: server.URL, Token: testToken, Timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(ClientConfig{Token: "t"})
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{BaseURL: "ftp://plex:32400", Token: "t"})
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{BaseURL: "http://plex:32400"})
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{BaseURL: "https://plex:32400/", Token: "t", SkipVerify: true})
	assert.NoError(t, err)
}

func TestClient_Identity(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/identity", r.URL.Path)
		assert.Equal(t, testToken, r.Header.Get("X-Plex-Token"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Empty(t, r.URL.RawQuery)
		writeJSON(w, `{"MediaContainer":{"size":0,"machineIdentifier":"abc123","version":"1.40.1","platform":"Linux","platformVersion":"6.1","friendlyName":"media"}}`)
	})

	id, err := client.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", id.MachineIdentifier)
	assert.Equal(t, "1.40.1", id.Version)
	assert.Equal(t, "Linux", id.Platform)
	assert.Equal(t, "media", id.FriendlyName)
}

func TestClient_BaseURLWithPath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plex/activities", r.URL.Path)
		writeJSON(w, `{"MediaContainer":{"size":2}}`)
	}, func(cfg *ClientConfig) { cfg.BaseURL += "/plex/" })

	acts, err := client.Activities(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, acts.Size)
}

func TestClient_Sessions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"MediaContainer":{"size":"1","Metadata":[{
			"sessionKey":"12","type":"episode","title":"Pilot","grandparentTitle":"Show",
			"parentIndex":1,"index":"2","duration":60000,"viewOffset":"30000",
			"User":{"title":"alice"},
			"Player":{"title":"TV","product":"Plex for LG","state":"playing","address":"10.0.0.2","local":true,"secure":"1"},
			"TranscodeSession":{"videoDecision":"transcode","audioDecision":"copy","speed":1.5,"throttled":false}
		}]}}`)
	})

	sessions, err := client.Sessions(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, sessions.Size)
	require.Len(t, sessions.Metadata, 1)

	s := sessions.Metadata[0]
	assert.Equal(t, "12", s.SessionKey)
	require.NotNil(t, s.Index)
	assert.EqualValues(t, 2, *s.Index)
	require.NotNil(t, s.ViewOffset)
	assert.EqualValues(t, 30000, *s.ViewOffset)
	assert.True(t, bool(s.Player.Local))
	assert.True(t, bool(s.Player.Secure))
	require.NotNil(t, s.TranscodeSession)
	require.NotNil(t, s.TranscodeSession.Speed)
	assert.Equal(t, 1.5, *s.TranscodeSession.Speed)
	assert.Nil(t, s.TranscodeSession.Progress)
	assert.Empty(t, s.TranscodeSession.SubtitleDecision)
}

func TestClient_SectionItemCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/sections/3/all", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("X-Plex-Container-Start"))
		assert.Equal(t, "0", r.URL.Query().Get("X-Plex-Container-Size"))
		writeJSON(w, `{"MediaContainer":{"size":0,"totalSize":1234}}`)
	})

	n, err := client.SectionItemCount(context.Background(), "3")
	require.NoError(t, err)
	assert.EqualValues(t, 1234, n)
}

func TestSectionContents_ItemCountFallsBackToSize(t *testing.T) {
	c := SectionContents{Size: 7}
	assert.EqualValues(t, 7, c.ItemCount())
}

func TestClient_HTTPStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := client.Devices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTPStatus)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "/devices", apiErr.Endpoint)
	assert.NotContains(t, err.Error(), testToken)
}

func TestClient_DecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"invalid json", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, `{"MediaContainer":`) }},
		{"empty body", func(w http.ResponseWriter, r *http.Request) { w.Header().Set("Content-Type", "application/json") }},
		{"missing container", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, `{}`) }},
		{"xml body", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/xml")
			_, _ = w.Write([]byte(`<MediaContainer size="0"/>`))
		}},
		{"bad number", func(w http.ResponseWriter, r *http.Request) { writeJSON(w, `{"MediaContainer":{"size":"lots"}}`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.Activities(context.Background())
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, func(cfg *ClientConfig) { cfg.Timeout = 50 * time.Millisecond })
	defer close(release)

	_, err := client.Identity(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, errors.Is(err, ErrNetwork))
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(ClientConfig{BaseURL: url, Token: testToken, Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.Identity(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.False(t, strings.Contains(err.Error(), testToken))
}

func TestClient_SkipVerify(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"MediaContainer":{"machineIdentifier":"tls-server","version":"1.40.1"}}`)
	}))
	t.Cleanup(server.Close)

	t.Run("verification on rejects self-signed certificate", func(t *testing.T) {
		client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: testToken, Timeout: 2 * time.Second})
		require.NoError(t, err)

		_, err = client.Identity(context.Background())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.ErrorIs(t, err, ErrNetwork)
		assert.Equal(t, EndpointIdentity, apiErr.Endpoint)
		assert.NotContains(t, err.Error(), testToken)
	})

	t.Run("verification off accepts self-signed certificate", func(t *testing.T) {
		client, err := NewClient(ClientConfig{BaseURL: server.URL, Token: testToken, Timeout: 2 * time.Second, SkipVerify: true})
		require.NoError(t, err)

		id, err := client.Identity(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tls-server", id.MachineIdentifier)
	})
}

func TestClient_RateLimit(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, `{"MediaContainer":{"size":0}}`)
	}, func(cfg *ClientConfig) { cfg.RateLimit = 20 })

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Activities(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
	// burst of 1 at 20 req/s: the 2nd and 3rd calls each wait ~50ms
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestUpdaterStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"MediaContainer":{"status":1,"version":"1.40.0","Release":[{"version":"1.41.0"}]}}`)
	})

	status, err := client.UpdaterStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.UpdateAvailable())
	assert.Equal(t, "1.41.0", status.Release[0].Version)
}
