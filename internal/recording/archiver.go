package recording

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/dkeye/vlink/internal/domain"
)

type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// S3Archiver copies finished recordings to an S3-compatible bucket.
type S3Archiver struct {
	client *s3.Client
	fs     afero.Fs
	bucket string
	prefix string
}

// NewS3Archiver creates an archiver. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewS3Archiver(ctx context.Context, fs afero.Fs, cfg S3Config) (*S3Archiver, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg, s3opts...),
		fs:     fs,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (a *S3Archiver) Key(r *domain.RecordingArtifact) string {
	return path.Join(a.prefix, string(r.SessionID), r.Filename)
}

func (a *S3Archiver) Archive(ctx context.Context, r *domain.RecordingArtifact) error {
	f, err := a.fs.Open(r.Path)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	key := a.Key(r)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(r.MediaType),
		ContentLength: aws.Int64(r.Size),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	log.Info().Str("module", "recording").Str("bucket", a.bucket).Str("key", key).Msg("recording archived")
	return nil
}
