// Package archive submits retrieval requests against the archive storage tier.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sony/gobreaker"

	"github.com/frostline/rehydrate/pkg/types"
)

// S3API is the subset of the S3 client used by the archive client.
type S3API interface {
	RestoreObject(ctx context.Context, input *s3.RestoreObjectInput, opts ...func(*s3.Options)) (*s3.RestoreObjectOutput, error)
}

// Client requests archive-tier object retrievals. Calls go through a circuit
// breaker; while the breaker is open, requests fail fast and surface to the
// caller as rejections.
type Client struct {
	client      S3API
	breaker     *gobreaker.CircuitBreaker
	restoreDays int32
	defaultTier types.LatencyClass
}

// Option configures a Client.
type Option func(*Client)

// WithClient sets a custom S3 client (useful for testing).
func WithClient(c S3API) Option {
	return func(a *Client) { a.client = c }
}

// New creates an archive retrieval client.
func New(cfg *types.ArchiveConfig, opts ...Option) (*Client, error) {
	restoreDays := int32(cfg.RestoreDays)
	if restoreDays <= 0 {
		restoreDays = 5
	}
	defaultTier := cfg.DefaultTier
	if defaultTier == "" {
		defaultTier = types.LatencyStandard
	}

	a := &Client{
		restoreDays: restoreDays,
		defaultTier: defaultTier,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "archive-restore",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		var clientOpts []func(*s3.Options)
		if cfg.Endpoint != "" {
			clientOpts = append(clientOpts, func(o *s3.Options) {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			})
		}
		a.client = s3.NewFromConfig(awsCfg, clientOpts...)
	}
	return a, nil
}

// DefaultTier returns the tier applied when a request does not name one.
func (a *Client) DefaultTier() types.LatencyClass {
	return a.defaultTier
}

// RequestRestore asks the archive tier to stage bucket/key for retrieval.
// A restore already in progress for the object counts as accepted; the
// completion event arrives through the normal path either way.
func (a *Client) RequestRestore(ctx context.Context, bucket, key string, tier types.LatencyClass) error {
	if tier == "" {
		tier = a.defaultTier
	}

	_, err := a.breaker.Execute(func() (interface{}, error) {
		_, err := a.client.RestoreObject(ctx, &s3.RestoreObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			RestoreRequest: &s3types.RestoreRequest{
				Days: aws.Int32(a.restoreDays),
				GlacierJobParameters: &s3types.GlacierJobParameters{
					Tier: glacierTier(tier),
				},
			},
		})
		if isRestoreAlreadyInProgress(err) {
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("restore request for %s/%s: %w", bucket, key, err)
	}
	return nil
}

func glacierTier(tier types.LatencyClass) s3types.Tier {
	switch tier {
	case types.LatencyExpedited:
		return s3types.TierExpedited
	case types.LatencyBulk:
		return s3types.TierBulk
	default:
		return s3types.TierStandard
	}
}

func isRestoreAlreadyInProgress(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "RestoreAlreadyInProgress"
}
