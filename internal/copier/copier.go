// Package copier moves restored objects to their destinations.
package copier

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/frostline/rehydrate/pkg/types"
)

// S3API is the subset of the S3 client used by the copy client.
type S3API interface {
	CopyObject(ctx context.Context, input *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
}

// Client performs server-side object copies. Copies overwrite the
// destination, so repeating one is safe.
type Client struct {
	client S3API
}

// Option configures a Client.
type Option func(*Client)

// WithClient sets a custom S3 client (useful for testing).
func WithClient(c S3API) Option {
	return func(cl *Client) { cl.client = c }
}

// New creates a copy client.
func New(cfg *types.CopyConfig, opts ...Option) (*Client, error) {
	cl := &Client{}
	for _, o := range opts {
		o(cl)
	}
	if cl.client == nil {
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
		cl.client = s3.NewFromConfig(awsCfg, clientOpts...)
	}
	return cl, nil
}

// Copy copies srcBucket/srcKey to dstBucket/dstKey.
func (c *Client) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(srcBucket + "/" + srcKey)),
	})
	if err != nil {
		return fmt.Errorf("copying %s/%s to %s/%s: %w", srcBucket, srcKey, dstBucket, dstKey, err)
	}
	return nil
}

// Codes that no amount of retrying will fix.
var permanentCodes = map[string]bool{
	"NoSuchKey":          true,
	"NoSuchBucket":       true,
	"AccessDenied":       true,
	"InvalidObjectState": true,
}

// Classify maps a copy error to a failure category for retry decisions.
func Classify(err error) types.FailureCategory {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FailureTimeout
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && permanentCodes[apiErr.ErrorCode()] {
		return types.FailurePermanent
	}
	return types.FailureTransient
}
