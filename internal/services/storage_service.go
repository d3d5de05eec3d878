// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/civilaviation/fop-backend/internal/config"
	"github.com/civilaviation/fop-backend/internal/permit"
	"github.com/civilaviation/fop-backend/internal/utils"
)

// DocumentStore keeps document blobs. Locators are opaque to callers.
type DocumentStore interface {
	Store(ctx context.Context, data []byte, filename, mimeType string) (string, error)
	Fetch(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) (bool, error)
}

type StorageService struct {
	store  DocumentStore
	config *config.Config
}

type UploadResult struct {
	Locator  string `json:"locator"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
}

// NewStorageService picks the store named by STORAGE_DRIVER.
func NewStorageService(config *config.Config) (*StorageService, error) {
	var store DocumentStore
	switch config.Storage.Driver {
	case "s3":
		s3Store, err := NewS3Store(config.AWS)
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		store = NewLocalStore(config.Storage.LocalPath)
	}
	return NewStorageServiceWithStore(store, config), nil
}

func NewStorageServiceWithStore(store DocumentStore, config *config.Config) *StorageService {
	return &StorageService{store: store, config: config}
}

// Upload validates size and content type and stores the blob under a
// tenant-scoped name.
func (s *StorageService) Upload(ctx context.Context, tenantID string, data []byte, filename string) (*UploadResult, error) {
	maxBytes := int64(s.config.Storage.MaxUploadMB) * 1024 * 1024
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, &permit.ArgumentError{Field: "file", Reason: fmt.Sprintf("exceeds %d MB", s.config.Storage.MaxUploadMB)}
	}
	if len(data) == 0 {
		return nil, &permit.ArgumentError{Field: "file", Reason: "is empty"}
	}

	mimeType := detectContentType(data)
	if !s.allowedType(mimeType) {
		return nil, &permit.ArgumentError{Field: "file", Reason: fmt.Sprintf("type %s is not allowed", mimeType)}
	}

	locator, err := s.store.Store(ctx, data, s.generateFileName(tenantID, filename), mimeType)
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Locator:  locator,
		Size:     int64(len(data)),
		MimeType: mimeType,
		SHA256:   utils.HashBytes(data),
	}, nil
}

// Remove deletes a replaced or abandoned blob.
func (s *StorageService) Remove(ctx context.Context, locator string) (bool, error) {
	return s.store.Delete(ctx, locator)
}

func (s *StorageService) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return s.store.Fetch(ctx, locator)
}

// DownloadURL returns a presigned link when the store supports one.
func (s *StorageService) DownloadURL(locator string) (string, bool, error) {
	presigner, ok := s.store.(interface {
		PresignedURL(string, time.Duration) (string, error)
	})
	if !ok {
		return "", false, nil
	}
	url, err := presigner.PresignedURL(locator, time.Duration(s.config.Storage.PresignMinute)*time.Minute)
	return url, err == nil, err
}

func (s *StorageService) allowedType(mimeType string) bool {
	if len(s.config.Storage.AllowedTypes) == 0 {
		return true
	}
	for _, allowed := range s.config.Storage.AllowedTypes {
		if strings.EqualFold(allowed, mimeType) {
			return true
		}
	}
	return false
}

func detectContentType(data []byte) string {
	mimeType := http.DetectContentType(data)
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType
}

func (s *StorageService) generateFileName(tenantID, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	timestamp := time.Now().UTC().Format("20060102")
	return fmt.Sprintf("%s/%s/%s%s", sanitizeSegment(tenantID), timestamp, uuid.New().String(), ext)
}

func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "_"
	}
	return s
}

// S3Store keeps documents in a private bucket.
type S3Store struct {
	client *s3.S3
	bucket string
}

func NewS3Store(cfg config.AWSConfig) (*S3Store, error) {
	awsConfig := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{client: s3.New(sess), bucket: cfg.S3Bucket}, nil
}

func (s *S3Store) Store(ctx context.Context, data []byte, key, mimeType string) (string, error) {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(mimeType),
		ContentLength:        aws.Int64(int64(len(data))),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return key, nil
}

func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, &permit.NotFoundError{Kind: "document blob", Key: key}
		}
		return nil, fmt.Errorf("failed to fetch from S3: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Delete reports whether the object existed.
func (s *S3Store) Delete(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect S3 object: %w", err)
	}

	if _, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return true, nil
}

// PresignedURL returns a time-limited download link.
func (s *S3Store) PresignedURL(key string, expiration time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, nil
}

// LocalStore keeps documents under a directory; the locator is the path
// relative to it.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(locator string) (string, error) {
	clean := filepath.Clean("/" + locator)
	if clean == "/" {
		return "", &permit.ArgumentError{Field: "locator", Reason: "is empty"}
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Store(_ context.Context, data []byte, name, _ string) (string, error) {
	full, err := s.path(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return "", fmt.Errorf("failed to write document: %w", err)
	}
	return name, nil
}

func (s *LocalStore) Fetch(_ context.Context, locator string) ([]byte, error) {
	full, err := s.path(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &permit.NotFoundError{Kind: "document blob", Key: locator}
	}
	return data, err
}

func (s *LocalStore) Delete(_ context.Context, locator string) (bool, error) {
	full, err := s.path(locator)
	if err != nil {
		return false, err
	}
	err = os.Remove(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
}
