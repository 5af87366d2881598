package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/brettbedarf/datafs"
	"github.com/brettbedarf/datafs/config"
	"github.com/brettbedarf/datafs/internal/util"
)

// s3API is the subset of *s3.Client used by S3Store
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements [datafs.RemoteStore] for "s3://bucket/key" URIs. The
// connector root lists buckets; key prefixes ending in "/" are directories.
type S3Store struct {
	client s3API
}

// NewS3Store builds a client from cfg. Static credentials are used when an
// access key is configured, the default AWS credential chain otherwise.
func NewS3Store(ctx context.Context, cfg config.S3) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Store{client: client}, nil
}

func newS3StoreWithClient(client s3API) *S3Store {
	return &S3Store{client: client}
}

// splitS3URI returns the bucket and key of uri with surrounding slashes removed
func splitS3URI(uri string) (bucket, key string) {
	_, rest, _ := strings.Cut(uri, "://")
	rest = strings.Trim(rest, "/")
	bucket, key, _ = strings.Cut(rest, "/")
	return bucket, key
}

// isS3NotFound reports the error codes S3 uses for missing buckets and keys
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

func s3Err(op, uri string, err error) error {
	if isS3NotFound(err) {
		return fmt.Errorf("s3 %s %s: %w", op, uri, datafs.ErrNotFound)
	}
	return fmt.Errorf("s3 %s %s: %w", op, uri, err)
}

func (s *S3Store) GetMetadata(ctx context.Context, uri string) (*datafs.Metadata, error) {
	bucket, key := splitS3URI(uri)
	if bucket == "" {
		return &datafs.Metadata{Kind: datafs.KindDir}, nil
	}
	if key == "" {
		if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
			return nil, s3Err("head bucket", uri, err)
		}
		return &datafs.Metadata{Kind: datafs.KindDir}, nil
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return &datafs.Metadata{
			Kind:     datafs.KindFile,
			Size:     uint64(max(aws.ToInt64(out.ContentLength), 0)),
			Modified: aws.ToTime(out.LastModified),
		}, nil
	}
	if !isS3NotFound(err) {
		return nil, s3Err("head object", uri, err)
	}

	// no object; a directory exists if anything lives below key/
	list, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(key + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, s3Err("list objects", uri, err)
	}
	if len(list.Contents) == 0 && len(list.CommonPrefixes) == 0 {
		return nil, fmt.Errorf("s3 head object %s: %w", uri, datafs.ErrNotFound)
	}
	return &datafs.Metadata{Kind: datafs.KindDir}, nil
}

// ListChildren returns buckets at the connector root and the first page of
// keys below a prefix elsewhere
func (s *S3Store) ListChildren(ctx context.Context, uri string) ([]datafs.Entry, error) {
	logger := util.GetLogger("S3Store")

	bucket, key := splitS3URI(uri)
	if bucket == "" {
		out, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
		if err != nil {
			return nil, s3Err("list buckets", uri, err)
		}
		entries := make([]datafs.Entry, 0, len(out.Buckets))
		for _, b := range out.Buckets {
			entries = append(entries, datafs.Entry{
				URI:      "s3://" + aws.ToString(b.Name),
				Metadata: datafs.Metadata{Kind: datafs.KindDir, Modified: aws.ToTime(b.CreationDate)},
			})
		}
		return entries, nil
	}

	prefix := ""
	if key != "" {
		prefix = key + "/"
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, s3Err("list objects", uri, err)
	}
	if aws.ToBool(out.IsTruncated) {
		logger.Warn().Str("uri", uri).Msg("Listing truncated; only the first page is shown")
	}

	base := "s3://" + bucket + "/"
	entries := make([]datafs.Entry, 0, len(out.CommonPrefixes)+len(out.Contents))
	for _, p := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), prefix), "/")
		if name == "" {
			continue
		}
		entries = append(entries, datafs.Entry{URI: base + prefix + name, Metadata: datafs.Metadata{Kind: datafs.KindDir}})
	}
	for _, o := range out.Contents {
		name := strings.TrimPrefix(aws.ToString(o.Key), prefix)
		if name == "" || strings.Contains(name, "/") {
			// directory marker object or a key outside this level
			continue
		}
		entries = append(entries, datafs.Entry{
			URI: base + prefix + name,
			Metadata: datafs.Metadata{
				Kind:     datafs.KindFile,
				Size:     uint64(max(aws.ToInt64(o.Size), 0)),
				Modified: aws.ToTime(o.LastModified),
			},
		})
	}
	return entries, nil
}

func (s *S3Store) ReadObject(ctx context.Context, uri string) ([]byte, error) {
	bucket, key := splitS3URI(uri)
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 get object %s: %w", uri, datafs.ErrIsDir)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, s3Err("get object", uri, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s: read body: %w", uri, err)
	}
	return data, nil
}

func (s *S3Store) WriteObject(ctx context.Context, uri string, data []byte) error {
	bucket, key := splitS3URI(uri)
	if bucket == "" || key == "" {
		return fmt.Errorf("s3 put object %s: %w", uri, datafs.ErrIsDir)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return s3Err("put object", uri, err)
	}
	return nil
}

var _ datafs.RemoteStore = (*S3Store)(nil)
