package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultS3Region = "us-east-1"

// S3 configuration errors.
var (
	ErrS3Endpoint    = errors.New("s3 endpoint is required")
	ErrS3Credentials = errors.New("s3 access key and secret key are required")
	ErrS3Bucket      = errors.New("s3 bucket is required")
)

// S3Config configures an S3Store.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// S3Store keeps one object per key in an S3-compatible bucket. Create checks
// for the object before writing it; two processes racing on the same key can
// both write, and the Cache consistency check then compares what it reads back.
type S3Store struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	initOnce sync.Once
	initErr  error
}

// NewS3Store creates an S3Store. The bucket is created on first use.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ErrS3Endpoint
	}

	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)

	if access == "" || secret == "" {
		return nil, ErrS3Credentials
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, ErrS3Bucket
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultS3Region
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (store *S3Store) ensureBucket(ctx context.Context) error {
	store.initOnce.Do(func() {
		exists, err := store.client.BucketExists(ctx, store.bucket)
		if err != nil {
			store.initErr = err

			return
		}

		if exists {
			return
		}

		store.initErr = store.client.MakeBucket(ctx, store.bucket, minio.MakeBucketOptions{Region: store.region})
	})

	return store.initErr
}

// Get implements Store.
func (store *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	err := store.ensureBucket(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	obj, err := store.client.GetObject(ctx, store.bucket, store.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get cache object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isMissing(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read cache object: %w", err)
	}

	return data, nil
}

// Create implements Store.
func (store *S3Store) Create(ctx context.Context, key string, data []byte) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	err := store.ensureBucket(ctx)
	if err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	objectKey := store.objectKey(key)

	_, err = store.client.StatObject(ctx, store.bucket, objectKey, minio.StatObjectOptions{})
	if err == nil {
		return ErrExists
	}

	if !isMissing(err) {
		return fmt.Errorf("stat cache object: %w", err)
	}

	_, err = store.client.PutObject(ctx, store.bucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("put cache object: %w", err)
	}

	return nil
}

// Close implements Store.
func (store *S3Store) Close() error {
	return nil
}

func (store *S3Store) objectKey(key string) string {
	if store.prefix == "" {
		return key
	}

	return path.Join(store.prefix, key)
}

func isMissing(err error) bool {
	code := minio.ToErrorResponse(err).Code

	return code == "NoSuchKey" || code == "NoSuchBucket"
}
