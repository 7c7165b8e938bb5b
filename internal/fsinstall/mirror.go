package fsinstall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MirrorSettings points at an S3-compatible bucket holding pre-fetched
// source archives under <Prefix>/<archive name>.
type MirrorSettings struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether a bucket was configured.
func (m MirrorSettings) Enabled() bool { return m.Bucket != "" }

// MirrorFetcher reads archives from a bucket mirror. The origin URL is
// ignored; the object key is derived from the archive file name.
type MirrorFetcher struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// NewMirrorFetcher builds the S3 client for ms. Static credentials are used
// when both keys are set, the default AWS credential chain otherwise.
func NewMirrorFetcher(ctx context.Context, ms MirrorSettings, debug bool) (*MirrorFetcher, error) {
	if !ms.Enabled() {
		return nil, fmt.Errorf("mirror bucket not configured (FSINSTALL_MIRROR_BUCKET)")
	}
	region := ms.Region
	if region == "" {
		region = "auto"
	}

	options := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if ms.AccessKey != "" && ms.SecretKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ms.AccessKey, ms.SecretKey, "")))
	}
	if debug {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirror config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if ms.Endpoint != "" {
			o.BaseEndpoint = aws.String(ms.Endpoint)
		}
		o.UsePathStyle = true
	})
	return &MirrorFetcher{Client: client, Bucket: ms.Bucket, Prefix: ms.Prefix}, nil
}

func (m *MirrorFetcher) key(dest string) string {
	return path.Join(m.Prefix, filepath.Base(dest))
}

func (m *MirrorFetcher) Fetch(ctx context.Context, _ string, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	out, err := m.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.Bucket),
		Key:    aws.String(m.key(dest)),
	})
	if err != nil {
		return fmt.Errorf("mirror get %s: %w", m.key(dest), err)
	}
	defer out.Body.Close()

	return writeAtomically(dest, func(w io.Writer) error {
		_, err := io.Copy(w, out.Body)
		return err
	})
}

// fallbackFetcher tries the mirror first and the origin when the mirror
// does not have the archive.
type fallbackFetcher struct {
	mirror Fetcher
	origin Fetcher
}

func (f fallbackFetcher) Fetch(ctx context.Context, url, dest string) error {
	err := f.mirror.Fetch(ctx, url, dest)
	if err == nil {
		return nil
	}
	loggerFromContext(ctx).Warn("mirror fetch failed, using origin", "file", filepath.Base(dest), "err", err)
	return f.origin.Fetch(ctx, url, dest)
}
