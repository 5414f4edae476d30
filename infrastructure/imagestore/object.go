package imagestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ragmag/ragmag/domain/document"
	"github.com/ragmag/ragmag/internal/config"
)

// ObjectStore writes page images to an S3-compatible bucket under keys of
// the form {documentID}/page_{n}.jpg.
type ObjectStore struct {
	client *minio.Client
	bucket string
	format config.ImageFormat
	logger *slog.Logger
}

// NewObjectStore creates an ObjectStore from S3 settings.
func NewObjectStore(s3 config.S3Env, format config.ImageFormat, logger *slog.Logger) (*ObjectStore, error) {
	endpoint := s3.Endpoint
	if endpoint == "" {
		endpoint = "s3." + s3.Region + ".amazonaws.com"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s3.AccessKey, s3.SecretKey, ""),
		Secure: s3.UseSSL,
		Region: s3.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &ObjectStore{
		client: client,
		bucket: s3.Bucket,
		format: format,
		logger: logger,
	}, nil
}

// Save uploads the page image as {documentID}/page_{n}.jpg.
func (s *ObjectStore) Save(ctx context.Context, documentID string, page int, img image.Image) (document.Asset, error) {
	data, err := EncodeJPEG(img)
	if err != nil {
		return document.Asset{}, err
	}

	key := PageKey(documentID, page)
	_, err = s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return document.Asset{}, fmt.Errorf("upload image %s: %w", key, err)
	}

	asset := document.Asset{Kind: document.StorageObject, Location: key}
	if s.format == config.ImageFormatBase64 || s.format == config.ImageFormatHybrid {
		inline, err := EncodeInline(img)
		if err != nil {
			return document.Asset{}, err
		}
		asset.Inline = inline
	}
	if s.format == config.ImageFormatHybrid {
		thumb, err := EncodeThumbnail(img)
		if err != nil {
			return document.Asset{}, err
		}
		asset.Thumbnail = thumb
	}
	return asset, nil
}

// Open downloads the stored JPEG for one page. The canonical key is tried
// first, then the asset's recorded key: a staged object whose promotion
// copy failed is still reachable under the key it was uploaded with.
func (s *ObjectStore) Open(ctx context.Context, documentID string, page int, asset document.Asset) (io.ReadCloser, error) {
	obj, err := s.open(ctx, PageKey(documentID, page))
	if err == nil {
		return obj, nil
	}
	if asset.Kind == document.StorageObject && asset.Location != "" {
		if obj, fallbackErr := s.open(ctx, asset.Location); fallbackErr == nil {
			return obj, nil
		}
	}
	if errors.Is(err, document.ErrNotFound) {
		return nil, fmt.Errorf("image %s/%d: %w", documentID, page, document.ErrNotFound)
	}
	return nil, err
}

// open fetches one object by key, probing eagerly so a missing key
// surfaces as not found here instead of on first read.
func (s *ObjectStore) open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("image %s: %w", key, document.ErrNotFound)
		}
		return nil, fmt.Errorf("stat image %s: %w", key, err)
	}
	return obj, nil
}

// DeleteDocument removes every object under the document's key prefix.
// Individual delete failures are logged and counted past.
func (s *ObjectStore) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	deleted := 0
	var firstErr error

	prefix := documentID + "/"
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("list images %s: %w", prefix, obj.Err)
			}
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			s.logger.Warn("failed to remove page image",
				slog.String("key", obj.Key), slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", obj.Key, err)
			}
			continue
		}
		deleted++
	}

	return deleted, firstErr
}

// PromoteDocument server-side copies every staged object to the target
// prefix and removes the staged copies.
func (s *ObjectStore) PromoteDocument(ctx context.Context, fromID, toID string) error {
	prefix := fromID + "/"
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("list staged images %s: %w", prefix, obj.Err)
		}

		dstKey := toID + "/" + strings.TrimPrefix(obj.Key, prefix)
		_, err := s.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
			minio.CopySrcOptions{Bucket: s.bucket, Object: obj.Key})
		if err != nil {
			return fmt.Errorf("copy image %s: %w", obj.Key, err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			s.logger.Warn("failed to remove staged image",
				slog.String("key", obj.Key), slog.String("error", err.Error()))
		}
	}
	return nil
}

var _ Store = (*ObjectStore)(nil)
