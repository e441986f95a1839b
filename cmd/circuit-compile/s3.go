package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/vocdoni/sealbid-node/circuits/tournament"
	"github.com/vocdoni/sealbid-node/log"
	"golang.org/x/sync/errgroup"
)

const uploadConcurrency = 4

// S3Config holds the destination of published artifacts.
type S3Config struct {
	Enabled   bool
	HostBase  string
	AccessKey string
	SecretKey string
	Space     string
	Bucket    string
}

// NewDefaultS3Config returns the configuration for the public artifacts
// space, with uploads disabled.
func NewDefaultS3Config() *S3Config {
	return &S3Config{
		HostBase: "ams3.digitaloceanspaces.com",
		Space:    "sealbid-circuits",
		Bucket:   "dev",
	}
}

// ArtifactUploader publishes artifact files to an S3 compatible space.
// Artifacts are content addressed, so objects already present are not
// uploaded again.
type ArtifactUploader struct {
	client *s3.Client
	conf   *S3Config
}

// NewArtifactUploader returns an uploader for cfg.
func NewArtifactUploader(cfg *S3Config) (*ArtifactUploader, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("s3 upload not enabled")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	sdkConfig, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		// ignored by spaces but required by the sdk
		config.WithRegion("us-east-1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String("https://" + cfg.HostBase)
		o.UsePathStyle = true
	})
	return &ArtifactUploader{client: client, conf: cfg}, nil
}

// Ping checks the credentials by listing a single object.
func (u *ArtifactUploader) Ping(ctx context.Context) error {
	_, err := u.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(u.conf.Space),
		Prefix:  aws.String(u.conf.Bucket + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("S3 connection test failed: %w", err)
	}
	log.Infow("S3 connection successful", "host", u.conf.HostBase, "space", u.conf.Space, "bucket", u.conf.Bucket)
	return nil
}

// exists reports whether key is already stored.
func (u *ArtifactUploader) exists(ctx context.Context, key string) (bool, error) {
	_, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.conf.Space),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	// spaces answer HEAD misses with an untyped 404
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return false, nil
	}
	return false, err
}

// Upload stores filePath as a public object and returns its key. The
// returned bool is false when the object was already present.
func (u *ArtifactUploader) Upload(ctx context.Context, filePath string) (string, bool, error) {
	key := objectKey(u.conf.Bucket, filePath)
	found, err := u.exists(ctx, key)
	if err != nil {
		return key, false, fmt.Errorf("failed to check object %s: %w", key, err)
	}
	// the manifest is not content addressed and is always replaced
	if found && filepath.Base(filePath) != tournament.ManifestFile {
		log.Debugw("artifact already uploaded", "key", key)
		return key, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		return key, false, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Warnw("failed to close file", "error", err)
		}
	}()

	log.Infow("uploading artifact", "key", key, "space", u.conf.Space)
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.conf.Space),
		Key:    aws.String(key),
		Body:   file,
		ACL:    types.ObjectCannedACLPublicRead,
	}); err != nil {
		return key, false, fmt.Errorf("failed to upload file %s: %w", filePath, err)
	}
	return key, true, nil
}

// objectKey returns the key of a local file inside bucket.
func objectKey(bucket, filePath string) string {
	return path.Join(bucket, filepath.Base(filePath))
}

// TestS3Connection checks the configured credentials before any artifact is
// built. It does nothing when uploads are disabled.
func TestS3Connection(ctx context.Context, cfg *S3Config) error {
	if !cfg.Enabled {
		log.Infow("s3 upload not enabled, skipping connection test")
		return nil
	}
	u, err := NewArtifactUploader(cfg)
	if err != nil {
		return err
	}
	return u.Ping(ctx)
}

// UploadFiles publishes the given artifact files concurrently.
func UploadFiles(ctx context.Context, filePaths []string, cfg *S3Config) error {
	if !cfg.Enabled {
		log.Infow("s3 upload not enabled, skipping")
		return nil
	}
	if len(filePaths) == 0 {
		log.Infow("no files to upload")
		return nil
	}
	u, err := NewArtifactUploader(cfg)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	uploaded := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for _, f := range filePaths {
		g.Go(func() error {
			_, fresh, err := u.Upload(gctx, f)
			if err != nil {
				return err
			}
			if fresh {
				mu.Lock()
				uploaded++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Infow("artifacts published", "uploaded", uploaded, "skipped", len(filePaths)-uploaded)
	return nil
}
