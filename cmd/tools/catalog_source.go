package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/hydra/internal"
	"go.uber.org/zap"
)

// loadCatalog reads a catalog document from a local path or an s3://bucket/key URI.
func loadCatalog(ctx context.Context, source string) (*internal.MemoryCatalog, error) {
	if !strings.HasPrefix(source, "s3://") {
		return internal.LoadFileCatalog(source)
	}
	bucket, key, err := parseS3URI(source)
	if err != nil {
		return nil, err
	}
	data, err := downloadObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	zap.S().Debugw("downloaded catalog", "bucket", bucket, "key", key, "bytes", len(data))
	return internal.ParseCatalog(data)
}

func parseS3URI(source string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("invalid catalog uri %q: %w", source, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid catalog uri %q: expected s3://bucket/key", source)
	}
	return bucket, key, nil
}

// downloadObject fetches one object. HYDRA_S3_ENDPOINT points the client at
// an S3-compatible store with path-style addressing.
func downloadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	var loadOpts []func(*config.LoadOptions) error
	endpoint := os.Getenv("HYDRA_S3_ENDPOINT")
	if endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(endpoint))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = endpoint != ""
	})

	buf := manager.NewWriteAtBuffer(nil)
	_, err = manager.NewDownloader(client).Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, fmt.Errorf("catalog object s3://%s/%s does not exist", bucket, key)
		}
		return nil, fmt.Errorf("s3 download: %w", err)
	}
	return buf.Bytes(), nil
}
