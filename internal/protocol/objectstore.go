package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"filescout/internal/entity"
	"filescout/internal/observability"
	"filescout/internal/secrets"
)

// ObjectStoreAdapter lists objects under a resolved key prefix using the S3
// API. Authentication uses the ambient identity of the process unless the
// configuration carries a credential secret reference.
type ObjectStoreAdapter struct {
	secrets        secrets.Resolver
	requestTimeout time.Duration
	logger         observability.Logger
	metrics        observability.Metrics
}

// NewObjectStoreAdapter creates the object-storage listing adapter.
func NewObjectStoreAdapter(resolver secrets.Resolver, requestTimeout time.Duration, logger observability.Logger, metrics observability.Metrics) *ObjectStoreAdapter {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &ObjectStoreAdapter{
		secrets:        resolver,
		requestTimeout: requestTimeout,
		logger:         logger,
		metrics:        metrics,
	}
}

// ListCandidates pages through objects under the resolved prefix and filters
// object base names against the resolved name pattern.
func (a *ObjectStoreAdapter) ListCandidates(ctx context.Context, settings entity.ProtocolSettings, resolvedPath, resolvedName string) ([]FileRef, error) {
	if settings.Bucket == "" {
		return nil, Errorf(InvalidConfiguration, "object storage settings missing bucket")
	}

	client, err := a.buildClient(ctx, settings)
	if err != nil {
		return nil, err
	}

	prefix := strings.Trim(resolvedPath, "/")
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(settings.Bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix + "/")
	}

	start := time.Now()
	var refs []FileRef
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			a.metrics.IncrementCounter("adapter.objectstore.errors", nil)
			return nil, categorizeS3Error(err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !nameMatches(resolvedName, path.Base(key)) {
				continue
			}
			ref := FileRef{
				Reference: fmt.Sprintf("s3://%s/%s", settings.Bucket, key),
			}
			if obj.Size != nil {
				size := *obj.Size
				ref.Size = &size
			}
			if obj.LastModified != nil {
				modified := *obj.LastModified
				ref.LastModified = &modified
			}
			refs = append(refs, ref)
		}
	}

	a.metrics.RecordHistogram("adapter.objectstore.list_duration_seconds", time.Since(start).Seconds(), nil)
	a.metrics.RecordHistogram("adapter.objectstore.candidates", float64(len(refs)), nil)
	return refs, nil
}

// buildClient assembles an S3 client for the configuration. A credential
// secret reference resolves to "accessKeyID:secretAccessKey"; without one the
// process's managed identity is used.
func (a *ObjectStoreAdapter) buildClient(ctx context.Context, settings entity.ProtocolSettings) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if settings.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(settings.Region))
	}

	if settings.CredentialSecretRef != "" {
		value, err := a.secrets.Resolve(ctx, settings.CredentialSecretRef)
		if err != nil {
			return nil, Errorf(AuthenticationFailure, "resolving credential secret reference: %v", err)
		}
		id, secret, ok := strings.Cut(value, ":")
		if !ok {
			return nil, Errorf(InvalidConfiguration, "credential secret reference %q has unexpected shape", settings.CredentialSecretRef)
		}
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, ""),
		))
	}

	optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{Timeout: a.requestTimeout}))

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, WrapError(InvalidConfiguration, err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// categorizeS3Error maps SDK failures into the taxonomy. Missing buckets are
// configuration mistakes, denied access is an authentication failure, and
// timeouts stay retryable.
func categorizeS3Error(err error) error {
	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return WrapError(InvalidConfiguration, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return WrapError(AuthenticationFailure, err)
		case "NoSuchBucket":
			return WrapError(InvalidConfiguration, err)
		case "RequestTimeout", "SlowDown", "ServiceUnavailable", "InternalError":
			return WrapError(ProtocolError, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ConnectionTimeout, err)
	}
	return WrapError(ProtocolError, err)
}

var _ Adapter = (*ObjectStoreAdapter)(nil)
