// Package fetch makes a source document available as a local file.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/Ratchadaporn07043/astrobot/internal/config"
)

var ErrInvalidSource = errors.New("invalid source")

const downloadTimeout = 2 * time.Minute

// Location is a parsed source reference. Scheme is empty for local paths.
type Location struct {
	Scheme string
	Bucket string
	Key    string
	Path   string
}

// Parse accepts a local path, s3://bucket/key or gs://bucket/object.
func Parse(src string) (Location, error) {
	if src == "" {
		return Location{}, fmt.Errorf("%w: empty", ErrInvalidSource)
	}
	if !strings.Contains(src, "://") {
		return Location{Path: src}, nil
	}

	u, err := url.Parse(src)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	switch u.Scheme {
	case "s3", "gs":
	default:
		return Location{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %s needs bucket and key", ErrInvalidSource, src)
	}
	return Location{Scheme: u.Scheme, Bucket: u.Host, Key: key}, nil
}

// Resolve returns a local path for src. Remote objects are downloaded to a
// temporary file which cleanup removes.
func Resolve(ctx context.Context, src string, cfg *config.SourceConfig) (string, func(), error) {
	noop := func() {}

	loc, err := Parse(src)
	if err != nil {
		return "", noop, err
	}
	if loc.Scheme == "" {
		if _, err := os.Stat(loc.Path); err != nil {
			return "", noop, fmt.Errorf("failed to stat %s: %w", loc.Path, err)
		}
		return loc.Path, noop, nil
	}

	f, err := os.CreateTemp("", "astrobot-*"+path.Ext(loc.Key))
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	switch loc.Scheme {
	case "s3":
		err = downloadS3(ctx, cfg, loc, f)
	case "gs":
		err = downloadGCS(ctx, loc, f)
	}
	if err != nil {
		cleanup()
		return "", noop, err
	}

	log.Info().Str("source", src).Str("file", f.Name()).Msg("Downloaded source document")
	return f.Name(), cleanup, nil
}

func downloadS3(ctx context.Context, cfg *config.SourceConfig, loc Location, f *os.File) error {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	if cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}

	downloader := manager.NewDownloader(s3.NewFromConfig(awsCfg))
	_, err = downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return fmt.Errorf("failed to download s3://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	return nil
}

func downloadGCS(ctx context.Context, loc Location, f *os.File) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open gs://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	defer r.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to download gs://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	return nil
}
