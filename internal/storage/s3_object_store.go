package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3ObjectStore keeps all objects in a single bucket.
type S3ObjectStore struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	downloader *manager.Downloader
	uploader   *manager.Uploader
	bucket     string
}

var _ ObjectStore = (*S3ObjectStore)(nil)

func NewS3ObjectStore(cfg S3ClientConfig) (*S3ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	client, err := initializeS3Client(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize s3 client: %w", err)
	}

	return &S3ObjectStore{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		downloader: manager.NewDownloader(client),
		uploader:   manager.NewUploader(client),
		bucket:     cfg.Bucket,
	}, nil
}

type objectIterator func(yield func(key string, err error) bool)

func (s *S3ObjectStore) iterObjects(ctx context.Context, prefix string) objectIterator {
	return func(yield func(key string, err error) bool) {
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield("", err)
				return
			}

			for _, obj := range page.Contents {
				if !yield(aws.ToString(obj.Key), nil) {
					return
				}
			}
		}
	}
}

func (s *S3ObjectStore) CreateBucket(ctx context.Context) error {
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var existErr *types.BucketAlreadyExists
		var ownedErr *types.BucketAlreadyOwnedByYou
		if errors.As(err, &existErr) || errors.As(err, &ownedErr) {
			slog.Info("Bucket already exists", "bucket", s.bucket)
			return nil
		}

		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}

	slog.Info("Bucket created successfully", "bucket", s.bucket)

	return nil
}

func (s *S3ObjectStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to s3://%s/%s: %w", s.bucket, key, err)
	}
	slog.Info("Object uploaded successfully", "bucket", s.bucket, "key", key)

	return nil
}

func (s *S3ObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	headObj, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object size for s3://%s/%s: %w", s.bucket, key, err)
	}

	buffer := manager.NewWriteAtBuffer(make([]byte, 0, aws.ToInt64(headObj.ContentLength)))
	_, err = s.downloader.Download(ctx, buffer, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download object s3://%s/%s: %w", s.bucket, key, err)
	}

	return buffer.Bytes(), nil
}

func (s *S3ObjectStore) DeleteObjects(ctx context.Context, prefix string) error {
	for key, err := range s.iterObjects(ctx, prefix) {
		if err != nil {
			return fmt.Errorf("failed to iterate objects in bucket %s with prefix %s: %w", s.bucket, prefix, err)
		}

		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects in bucket %s with prefix %s: %w", s.bucket, prefix, err)
		}
	}

	slog.Info("Objects deleted successfully", "bucket", s.bucket, "prefix", prefix)

	return nil
}

func (s *S3ObjectStore) PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (PresignedUpload, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("failed to presign upload for s3://%s/%s: %w", s.bucket, key, err)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPut
	}
	return PresignedUpload{
		Url:       req.URL,
		Method:    method,
		ExpiresAt: time.Now().Add(expiry).UTC(),
	}, nil
}
