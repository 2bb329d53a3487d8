package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filescout/internal/entity"
	"filescout/internal/observability"
	"filescout/internal/secrets"
)

func newTestHTTPSAdapter(t *testing.T) *HTTPSAdapter {
	t.Helper()
	return NewHTTPSAdapter(
		&http.Client{Timeout: 5 * time.Second},
		secrets.Static{"api-token": "sekret"},
		observability.NopLogger{},
		observability.NopMetrics{},
	)
}

func settingsFor(srv *httptest.Server) entity.ProtocolSettings {
	return entity.ProtocolSettings{BaseURL: srv.URL}
}

func TestHTTPSProbeFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/rpt/20250124.csv", r.URL.Path)
		w.Header().Set("Content-Length", "2048")
		w.Header().Set("Last-Modified", "Fri, 24 Jan 2025 06:00:00 GMT")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	refs, err := newTestHTTPSAdapter(t).ListCandidates(context.Background(), settingsFor(srv), "/rpt", "20250124.csv")
	require.NoError(t, err)
	require.Len(t, refs, 1)

	assert.Equal(t, srv.URL+"/rpt/20250124.csv", refs[0].Reference)
	require.NotNil(t, refs[0].Size)
	assert.Equal(t, int64(2048), *refs[0].Size)
	require.NotNil(t, refs[0].LastModified)
	assert.Equal(t, time.Date(2025, 1, 24, 6, 0, 0, 0, time.UTC), refs[0].LastModified.UTC())
}

func TestHTTPSProbeNotFoundIsNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	refs, err := newTestHTTPSAdapter(t).ListCandidates(context.Background(), settingsFor(srv), "/rpt", "missing.csv")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestHTTPSProbeServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestHTTPSAdapter(t).ListCandidates(context.Background(), settingsFor(srv), "/rpt", "f.csv")
	require.Error(t, err)
	assert.Equal(t, ProtocolError, CategoryOf(err))
	assert.True(t, CategoryOf(err).Retryable())
}

func TestHTTPSProbeForbiddenIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestHTTPSAdapter(t).ListCandidates(context.Background(), settingsFor(srv), "/rpt", "f.csv")
	require.Error(t, err)
	assert.Equal(t, AuthenticationFailure, CategoryOf(err))
	assert.False(t, CategoryOf(err).Retryable())
}

func TestHTTPSProbeOtherClientErrorIsInvalidConfiguration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := newTestHTTPSAdapter(t).ListCandidates(context.Background(), settingsFor(srv), "/rpt", "f.csv")
	require.Error(t, err)
	assert.Equal(t, InvalidConfiguration, CategoryOf(err))
}

func TestHTTPSProbeFallsBackToGet(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	refs, err := newTestHTTPSAdapter(t).ListCandidates(context.Background(), settingsFor(srv), "", "f.csv")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
	assert.Equal(t, []string{http.MethodHead, http.MethodGet}, methods)
}

func TestHTTPSProbeSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	settings := settingsFor(srv)
	settings.BearerSecretRef = "api-token"

	_, err := newTestHTTPSAdapter(t).ListCandidates(context.Background(), settings, "", "f.csv")
	require.NoError(t, err)
}

func TestHTTPSMissingBaseURL(t *testing.T) {
	_, err := newTestHTTPSAdapter(t).ListCandidates(context.Background(), entity.ProtocolSettings{}, "/rpt", "f.csv")
	require.Error(t, err)
	assert.Equal(t, InvalidConfiguration, CategoryOf(err))
}
