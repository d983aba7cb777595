// Package objectstore implements the S3-compatible object store backend.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

// API is the subset of *s3.Client used by Store.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	s3.ListObjectsV2APIClient
}

var _ API = (*s3.Client)(nil)

const peer = "s3"

// Store reads and writes documents in one bucket. All paths passed to and
// returned from Store are relative paths; the configured key prefix is
// applied internally.
type Store struct {
	client    API
	bucket    string
	keyPrefix string
	baseURL   string
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithKeyPrefix stores every object under prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		s.keyPrefix = prefix
	}
}

// WithBaseURL sets the public URL used to build absolute object URIs.
// The default is the AWS virtual-hosted form.
func WithBaseURL(u string) Option {
	return func(s *Store) {
		s.baseURL = strings.TrimRight(u, "/")
	}
}

// New creates a Store over an existing client.
func New(client API, bucket string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("object store client is required")
	}
	if bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	s := &Store{
		client:  client,
		bucket:  bucket,
		baseURL: "https://" + bucket + ".s3.amazonaws.com",
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromConfig builds the S3 client from configuration. Static credentials
// are used when an access key is configured, otherwise the default AWS
// credential chain applies.
func NewFromConfig(ctx context.Context, cfg *infraconfig.ObjectStoreConfig, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("object store configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("object store bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "eu-west-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		if cfg.SecretKey == "" {
			return nil, errors.New("object store secret key is required with an access key")
		}
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint, err := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	base := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	switch {
	case endpoint != "":
		base = endpoint + "/" + cfg.Bucket
	case cfg.UsePathStyle:
		base = fmt.Sprintf("https://s3.%s.amazonaws.com/%s", region, cfg.Bucket)
	}

	all := append([]Option{WithKeyPrefix(cfg.KeyPrefix), WithBaseURL(base)}, opts...)
	return New(client, cfg.Bucket, all...)
}

func normalizeEndpoint(endpoint string, useSSL bool) (string, error) {
	if endpoint == "" {
		return "", nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if useSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return "", fmt.Errorf("invalid object store endpoint: %w", err)
	}
	return strings.TrimRight(endpoint, "/"), nil
}

// Bucket returns the bucket name
func (s *Store) Bucket() string {
	return s.bucket
}

// Key maps a relative path to its object key.
func (s *Store) Key(relativePath string) string {
	return s.keyPrefix + strings.TrimLeft(relativePath, "/")
}

// Relative strips the key prefix from an object key.
func (s *Store) Relative(key string) string {
	return strings.TrimPrefix(key, s.keyPrefix)
}

// URL returns the public address of the object at relativePath.
func (s *Store) URL(relativePath string) string {
	return s.baseURL + "/" + escapeKey(s.Key(relativePath))
}

// Upload writes the payload with a single PutObject.
func (s *Store) Upload(ctx context.Context, req document.UploadRequest) (document.StorageLocator, error) {
	const op = "object store upload"

	req, err := req.Normalize()
	if err != nil {
		return document.StorageLocator{}, err
	}
	key := s.Key(req.RelativePath)

	ctx, span := telemetry.StartClientSpan(ctx, peer, "put_object",
		telemetry.WithAttribute(telemetry.SpanAttrBucket, s.bucket),
		telemetry.WithAttribute(telemetry.SpanAttrRelativePath, req.RelativePath),
		telemetry.WithAttribute(telemetry.SpanAttrSizeBytes, len(req.Payload)),
	)
	defer span.End()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(req.Payload),
		ContentLength: aws.Int64(int64(len(req.Payload))),
		ContentType:   aws.String(req.ContentType),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return document.StorageLocator{}, classify(op, document.ErrKindUpload, "put "+key, err)
	}

	logger.L(ctx, s.logger).Debug("Object stored",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("size", len(req.Payload)),
	)

	return document.NewObjectLocator(s.bucket, key, req.RelativePath, s.URL(req.RelativePath), int64(len(req.Payload))), nil
}

// Download returns the object body. A zero-byte object is an error.
func (s *Store) Download(ctx context.Context, relativePath string) ([]byte, error) {
	const op = "object store download"
	key := s.Key(relativePath)

	ctx, span := telemetry.StartClientSpan(ctx, peer, "get_object",
		telemetry.WithAttribute(telemetry.SpanAttrBucket, s.bucket),
		telemetry.WithAttribute(telemetry.SpanAttrRelativePath, relativePath),
	)
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, classify(op, document.ErrKindDownload, "get "+key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, classify(op, document.ErrKindDownload, "read "+key, err)
	}
	if len(data) == 0 {
		return nil, document.NewDownloadError(op, "object is empty: "+key, nil)
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrSizeBytes, len(data))
	return data, nil
}

// Copy copies srcPath to dstPath within the bucket.
func (s *Store) Copy(ctx context.Context, srcPath, dstPath string) error {
	const op = "object store copy"
	src, dst := s.Key(srcPath), s.Key(dstPath)

	ctx, span := telemetry.StartClientSpan(ctx, peer, "copy_object",
		telemetry.WithAttribute(telemetry.SpanAttrBucket, s.bucket),
		telemetry.WithAttribute("source", src),
		telemetry.WithAttribute("destination", dst),
	)
	defer span.End()

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(escapeKey(s.bucket + "/" + src)),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return classify(op, document.ErrKindMove, fmt.Sprintf("copy %s -> %s", src, dst), err)
	}
	return nil
}

// Delete removes the object at relativePath.
func (s *Store) Delete(ctx context.Context, relativePath string) error {
	const op = "object store delete"
	key := s.Key(relativePath)

	ctx, span := telemetry.StartClientSpan(ctx, peer, "delete_object",
		telemetry.WithAttribute(telemetry.SpanAttrBucket, s.bucket),
		telemetry.WithAttribute(telemetry.SpanAttrRelativePath, relativePath),
	)
	defer span.End()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return classify(op, document.ErrKindMove, "delete "+key, err)
	}
	return nil
}

// List returns the relative paths of every object under prefix, following
// continuation tokens until the listing is complete.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	const op = "object store list"

	ctx, span := telemetry.StartClientSpan(ctx, peer, "list_objects",
		telemetry.WithAttribute(telemetry.SpanAttrBucket, s.bucket),
		telemetry.WithAttribute("prefix", prefix),
	)
	defer span.End()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.Key(prefix)),
	})

	var paths []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, classify(op, document.ErrKindDownload, "list "+prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				paths = append(paths, s.Relative(*obj.Key))
			}
		}
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrObjectCount, len(paths))
	return paths, nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return classify("object store ping", document.ErrKindDownload, "head bucket "+s.bucket, err)
	}
	return nil
}

// ErrorCode returns the S3 API error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func classify(op string, kind document.ErrorKind, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return document.NewTimeoutError(op, msg+": deadline exceeded", err)
	}
	switch code := ErrorCode(err); code {
	case "NoSuchKey", "NotFound":
		return document.NewError(kind, op, msg+": object not found", err)
	case "NoSuchBucket":
		return document.NewError(kind, op, msg+": bucket not found", err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return document.NewError(kind, op, msg+": access denied ("+code+")", err)
	}
	return document.NewError(kind, op, msg, err)
}

// escapeKey URL-escapes each path segment and keeps the separators.
func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}
