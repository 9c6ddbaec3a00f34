// Package archive mirrors run artifacts (the raw activity log and
// newly downloaded media) to an S3 bucket after the sync pass
// completes. It is opt-in and never affects the sync outcome.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/bwsync/bwsync/pkg/config"
)

// objectPutter is the slice of the S3 API the archiver uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads local files to one bucket under a fixed prefix.
type Archiver struct {
	cfg    config.ArchiveConfig
	client objectPutter
	logger *slog.Logger
}

// New builds an archiver from the AWS default credential chain,
// overridden by explicit static credentials when configured.
func New(ctx context.Context, cfg config.ArchiveConfig, logger *slog.Logger) (*Archiver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		// S3-compatible services (MinIO and friends) want path style.
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		logger: logger,
	}, nil
}

// Mirror uploads the given files with bounded concurrency. The sync
// pass is already done by the time this runs, so parallel uploads do
// not violate the pipeline's sequential contract.
func (a *Archiver) Mirror(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	concurrency := a.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			return a.upload(ctx, p)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("mirroring artifacts to s3: %w", err)
	}
	a.logger.Info("mirrored artifacts", "bucket", a.cfg.Bucket, "count", len(paths))
	return nil
}

func (a *Archiver) upload(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	key := path.Join(a.cfg.Prefix, filepath.Base(localPath))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}

	a.logger.Debug("uploaded artifact", "key", key)
	return nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mp4":
		return "video/mp4"
	case ".jsonl":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
