// internal/services/storage_service.go
package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/dipm-backend/internal/config"
)

// ErrContentNotFound is returned when a content id does not resolve to
// stored bytes, including placeholder ids minted while running without S3.
var ErrContentNotFound = errors.New("content not found")

// localContentPrefix marks ids minted in local development, where bytes
// are not persisted anywhere and can never be fetched back.
const localContentPrefix = "local-"

type StorageService struct {
	s3Client *s3.S3
	config   *config.Config
}

// StoreResult describes a stored blob. ContentID is the hex sha256 of the
// blob's bytes, so storing the same bytes twice yields the same id.
type StoreResult struct {
	ContentID string `json:"content_id"`
	URL       string `json:"url"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mime_type"`
}

type UploadOptions struct {
	MaxSize      int64 // in bytes
	AllowedTypes []string
	IsPublic     bool
}

func NewStorageService(config *config.Config) (*StorageService, error) {
	if config.AWS.AccessKeyID == "" {
		// Run without S3 for local development
		return &StorageService{config: config}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   config,
	}, nil
}

// Configured reports whether blobs are actually persisted. When false,
// Store still succeeds but returns placeholder ids.
func (s *StorageService) Configured() bool {
	return s.s3Client != nil
}

func (s *StorageService) StoreUpload(file multipart.File, header *multipart.FileHeader, options UploadOptions) (*StoreResult, error) {
	if options.MaxSize > 0 && header.Size > options.MaxSize {
		return nil, fmt.Errorf("file size %d bytes exceeds maximum allowed size %d bytes", header.Size, options.MaxSize)
	}

	if len(options.AllowedTypes) > 0 {
		fileExt := strings.ToLower(filepath.Ext(header.Filename))
		allowed := false
		for _, allowedType := range options.AllowedTypes {
			if fileExt == allowedType {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("file type %s is not allowed", fileExt)
		}
	}

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(fileBytes)
	}

	return s.Store(fileBytes, contentType, options.IsPublic)
}

// Store persists raw bytes and returns their content id. Storing is
// idempotent: re-storing existing bytes overwrites the same object.
func (s *StorageService) Store(data []byte, contentType string, isPublic bool) (*StoreResult, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if s.s3Client == nil {
		// Bytes are discarded; hand back a placeholder id so the rest of
		// the flow can proceed in development.
		id := localContentPrefix + hash[:32]
		logrus.WithField("content_id", id).Debug("S3 not configured, minted placeholder content id")
		return &StoreResult{
			ContentID: id,
			URL:       fmt.Sprintf("http://localhost:8080/v1/files/content/%s", id),
			Size:      int64(len(data)),
			MimeType:  contentType,
		}, nil
	}

	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(s.objectKey(hash)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if isPublic {
		params.ACL = aws.String("public-read")
	}

	if _, err := s.s3Client.PutObject(params); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &StoreResult{
		ContentID: hash,
		URL:       s.getS3URL(s.objectKey(hash)),
		Size:      int64(len(data)),
		MimeType:  contentType,
	}, nil
}

// Fetch returns the bytes behind a content id. Placeholder ids and ids
// that were never stored fail with ErrContentNotFound.
func (s *StorageService) Fetch(contentID string) ([]byte, error) {
	if strings.HasPrefix(contentID, localContentPrefix) {
		return nil, ErrContentNotFound
	}
	if s.s3Client == nil {
		return nil, ErrContentNotFound
	}

	out, err := s.s3Client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(s.objectKey(contentID)),
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to fetch from S3: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return data, nil
}

func (s *StorageService) Delete(contentID string) error {
	if s.s3Client == nil {
		logrus.WithField("content_id", contentID).Debug("S3 not configured, skipping delete")
		return nil
	}

	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(s.objectKey(contentID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

func (s *StorageService) GeneratePresignedURL(contentID string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(s.objectKey(contentID)),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, nil
}

func (s *StorageService) GetDefaultUploadOptions(category string) UploadOptions {
	switch category {
	case "marketplace_files":
		return UploadOptions{
			MaxSize:      100 * 1024 * 1024, // 100MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".gif", ".pdf", ".mp4", ".mp3", ".zip", ".epub", ".svg"},
			IsPublic:     false,
		}
	case "previews":
		return UploadOptions{
			MaxSize:      10 * 1024 * 1024, // 10MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".gif"},
			IsPublic:     true,
		}
	case "avatars":
		return UploadOptions{
			MaxSize:      2 * 1024 * 1024, // 2MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png"},
			IsPublic:     true,
		}
	default:
		return UploadOptions{
			MaxSize:      5 * 1024 * 1024, // 5MB
			AllowedTypes: []string{".jpg", ".jpeg", ".png", ".pdf"},
			IsPublic:     false,
		}
	}
}

func (s *StorageService) objectKey(contentID string) string {
	return "content/" + contentID
}

func (s *StorageService) getS3URL(key string) string {
	if s.config.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", s.config.AWS.CloudFrontURL, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}
