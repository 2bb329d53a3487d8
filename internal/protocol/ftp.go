package protocol

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"filescout/internal/entity"
	"filescout/internal/observability"
	"filescout/internal/secrets"
)

// FTPAdapter lists a remote directory over FTP. Connections use explicit TLS
// and passive mode by default, are established per call, and are bounded by
// the configured dial timeout.
type FTPAdapter struct {
	secrets     secrets.Resolver
	dialTimeout time.Duration
	logger      observability.Logger
	metrics     observability.Metrics
}

// NewFTPAdapter creates the FTP listing adapter.
func NewFTPAdapter(resolver secrets.Resolver, dialTimeout time.Duration, logger observability.Logger, metrics observability.Metrics) *FTPAdapter {
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	return &FTPAdapter{
		secrets:     resolver,
		dialTimeout: dialTimeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// ListCandidates connects, lists the resolved directory and filters entries
// against the resolved name pattern (exact names and shell-style globs).
func (a *FTPAdapter) ListCandidates(ctx context.Context, settings entity.ProtocolSettings, resolvedPath, resolvedName string) ([]FileRef, error) {
	if settings.Host == "" {
		return nil, Errorf(InvalidConfiguration, "ftp settings missing host")
	}
	port := settings.Port
	if port == 0 {
		port = 21
	}
	addr := fmt.Sprintf("%s:%d", settings.Host, port)

	password := ""
	if settings.PasswordSecretRef != "" {
		var err error
		password, err = a.secrets.Resolve(ctx, settings.PasswordSecretRef)
		if err != nil {
			return nil, Errorf(AuthenticationFailure, "resolving password secret reference: %v", err)
		}
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(a.dialTimeout),
	}
	if !settings.DisableTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: settings.Host}))
	}

	start := time.Now()
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		a.metrics.IncrementCounter("adapter.ftp.errors", map[string]string{"error_type": "dial"})
		return nil, categorizeFTPError(err)
	}
	defer conn.Quit()

	if err := conn.Login(settings.Username, password); err != nil {
		a.metrics.IncrementCounter("adapter.ftp.errors", map[string]string{"error_type": "auth"})
		// The raw error may echo the username but never the password; wrap a
		// fixed message anyway so nothing from the exchange leaks.
		return nil, Errorf(AuthenticationFailure, "ftp login to %s rejected", settings.Host)
	}

	dir := resolvedPath
	if dir == "" {
		dir = "/"
	}
	entries, err := conn.List(dir)
	if err != nil {
		if isFTPNotFound(err) {
			a.logger.Debug("remote directory not present", "host", settings.Host, "path", dir)
			a.metrics.IncrementCounter("adapter.ftp.not_found", nil)
			return nil, nil
		}
		a.metrics.IncrementCounter("adapter.ftp.errors", map[string]string{"error_type": "list"})
		return nil, categorizeFTPError(err)
	}

	var refs []FileRef
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if !nameMatches(resolvedName, e.Name) {
			continue
		}
		size := int64(e.Size)
		modified := e.Time
		refs = append(refs, FileRef{
			Reference:    ftpReference(settings.Host, dir, e.Name),
			Size:         &size,
			LastModified: &modified,
		})
	}

	a.metrics.RecordHistogram("adapter.ftp.list_duration_seconds", time.Since(start).Seconds(), nil)
	a.metrics.RecordHistogram("adapter.ftp.candidates", float64(len(refs)), nil)
	return refs, nil
}

// nameMatches applies the resolved name pattern: a literal file name, or a
// shell-style glob for extension filters like "*.csv".
func nameMatches(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	if matched, err := path.Match(pattern, name); err == nil {
		return matched
	}
	return pattern == name
}

func ftpReference(host, dir, name string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return fmt.Sprintf("ftp://%s/%s", host, name)
	}
	return fmt.Sprintf("ftp://%s/%s/%s", host, dir, name)
}

// isFTPNotFound detects 550 replies, which FTP servers use for a missing
// directory. An absent directory means no candidates today, not a failure.
func isFTPNotFound(err error) bool {
	var perr *textproto.Error
	return errors.As(err, &perr) && perr.Code == ftp.StatusFileUnavailable
}

// categorizeFTPError maps dial and protocol failures into the taxonomy:
// network timeouts are retryable connection timeouts, 4xx transient replies
// and everything else are retryable protocol errors, permanent 5xx replies
// other than file-unavailable are configuration errors.
func categorizeFTPError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return WrapError(ConnectionTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ConnectionTimeout, err)
	}

	var perr *textproto.Error
	if errors.As(err, &perr) {
		switch {
		case perr.Code == ftp.StatusNotLoggedIn:
			return WrapError(AuthenticationFailure, err)
		case perr.Code >= 500:
			return WrapError(InvalidConfiguration, err)
		}
	}
	return WrapError(ProtocolError, err)
}

var _ Adapter = (*FTPAdapter)(nil)
