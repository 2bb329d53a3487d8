package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"filescout/internal/entity"
	"filescout/internal/observability"
	"filescout/internal/secrets"
)

// HTTPSAdapter probes for a single file at a fully resolved URL. It prefers
// a HEAD request and falls back to GET when the server does not support HEAD.
type HTTPSAdapter struct {
	client  *http.Client
	secrets secrets.Resolver
	logger  observability.Logger
	metrics observability.Metrics
}

// NewHTTPSAdapter creates the HTTPS existence-probe adapter. The client's
// timeout caps the whole probe.
func NewHTTPSAdapter(client *http.Client, resolver secrets.Resolver, logger observability.Logger, metrics observability.Metrics) *HTTPSAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSAdapter{
		client:  client,
		secrets: resolver,
		logger:  logger,
		metrics: metrics,
	}
}

// ListCandidates probes the resolved URL. A 404 means "no candidates", not an
// error; 5xx responses are retryable; 4xx other than 404 are configuration
// errors (401/403 surface as authentication failures).
func (a *HTTPSAdapter) ListCandidates(ctx context.Context, settings entity.ProtocolSettings, resolvedPath, resolvedName string) ([]FileRef, error) {
	target, err := joinURL(settings.BaseURL, resolvedPath, resolvedName)
	if err != nil {
		return nil, WrapError(InvalidConfiguration, err)
	}

	var bearer string
	if settings.BearerSecretRef != "" {
		bearer, err = a.secrets.Resolve(ctx, settings.BearerSecretRef)
		if err != nil {
			return nil, Errorf(AuthenticationFailure, "resolving bearer secret reference: %v", err)
		}
	}

	start := time.Now()
	resp, err := a.probe(ctx, http.MethodHead, target, bearer)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		// Server doesn't support HEAD; probe again with GET and discard the body.
		resp.Body.Close()
		resp, err = a.probe(ctx, http.MethodGet, target, bearer)
	}
	if err != nil {
		a.metrics.IncrementCounter("adapter.https.errors", map[string]string{"error_type": "transport"})
		return nil, categorizeTransportError(err)
	}
	defer resp.Body.Close()

	a.metrics.RecordHistogram("adapter.https.probe_duration_seconds", time.Since(start).Seconds(), nil)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		ref := FileRef{Reference: target}
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size >= 0 {
				ref.Size = &size
			}
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				ref.LastModified = &t
			}
		}
		a.metrics.IncrementCounter("adapter.https.found", nil)
		return []FileRef{ref}, nil

	case resp.StatusCode == http.StatusNotFound:
		a.logger.Debug("remote file not present", "url", target)
		a.metrics.IncrementCounter("adapter.https.not_found", nil)
		return nil, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		a.metrics.IncrementCounter("adapter.https.errors", map[string]string{"error_type": "auth"})
		return nil, Errorf(AuthenticationFailure, "probe of %s returned status %d", target, resp.StatusCode)

	case resp.StatusCode >= 500:
		a.metrics.IncrementCounter("adapter.https.errors", map[string]string{"error_type": "server"})
		return nil, Errorf(ProtocolError, "probe of %s returned status %d", target, resp.StatusCode)

	default:
		a.metrics.IncrementCounter("adapter.https.errors", map[string]string{"error_type": "client"})
		return nil, Errorf(InvalidConfiguration, "probe of %s returned status %d", target, resp.StatusCode)
	}
}

func (a *HTTPSAdapter) probe(ctx context.Context, method, target, bearer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, WrapError(InvalidConfiguration, err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return a.client.Do(req)
}

// categorizeTransportError maps client-side failures: anything that timed out
// is a connection timeout, the rest is a transient protocol error. The error
// text from net/http never contains credentials.
func categorizeTransportError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return WrapError(ConnectionTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ConnectionTimeout, err)
	}
	return WrapError(ProtocolError, err)
}

// joinURL combines the configured base URL with the resolved path and name.
// The base URL carries the authority; the path and name segments were
// already token-resolved.
func joinURL(base, resolvedPath, resolvedName string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("https settings missing baseUrl")
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("https baseUrl %q is not a valid URL", base)
	}
	segments := []string{strings.Trim(u.Path, "/")}
	if p := strings.Trim(resolvedPath, "/"); p != "" {
		segments = append(segments, p)
	}
	if n := strings.Trim(resolvedName, "/"); n != "" {
		segments = append(segments, n)
	}
	joined := strings.Join(segments, "/")
	u.Path = "/" + strings.TrimPrefix(joined, "/")
	return u.String(), nil
}

var _ Adapter = (*HTTPSAdapter)(nil)
