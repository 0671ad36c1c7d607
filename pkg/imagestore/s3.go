package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"magazyn/pkg/config"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignGetAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3 stores private objects in an S3 compatible bucket
type S3 struct {
	client     putObjectAPI
	presigner  presignGetAPI
	bucket     string
	publicBase string
	ttl        time.Duration
}

// NewS3 builds the client from cfg. A custom endpoint switches to
// path-style addressing, as self-hosted S3 implementations expect.
func NewS3(ctx context.Context, cfg *config.StorageConfig) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
		ttl:        cfg.SignedURLTTL,
	}, nil
}

func (s *S3) Driver() string { return config.StorageDriverS3 }

func (s *S3) Save(ctx context.Context, data []byte, mimeType, productID string) (*Object, error) {
	key := ObjectKey(productID, mimeType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(int64(len(data))),
		ACL:           types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	// without a public base the key is kept and presigned on every read
	if s.publicBase == "" {
		return &Object{Key: key, URL: key}, nil
	}
	return &Object{Key: key, URL: s.publicBase + "/" + key}, nil
}

// ResolveURL turns a stored reference into a loadable URL. Absolute URLs
// and site paths pass through; bare keys get the public base or a presigned
// GET valid for the configured TTL.
func (s *S3) ResolveURL(ctx context.Context, stored string) (string, error) {
	if stored == "" || strings.HasPrefix(stored, "/") || strings.Contains(stored, "://") {
		return stored, nil
	}
	if s.publicBase != "" {
		return s.publicBase + "/" + stored, nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(stored),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", stored, err)
	}
	return req.URL, nil
}

// StoredRef recovers the object key from a URL presigned by this store, so
// clients echoing image URLs back on update do not persist an expiring link.
func (s *S3) StoredRef(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Query().Get("X-Amz-Signature") == "" {
		return raw
	}
	key := strings.TrimPrefix(u.Path, "/")
	if strings.HasPrefix(u.Host, s.bucket+".") {
		return key
	}
	// path-style addressing
	if rest, ok := strings.CutPrefix(key, s.bucket+"/"); ok {
		return rest
	}
	return raw
}
