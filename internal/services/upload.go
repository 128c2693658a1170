package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jobboard/apiserver/internal/ids"
)

// Upload buckets accepted by UploadService.
const (
	BucketProfilePictures = "profile-pictures"
	BucketResumes         = "resumes"
	BucketCompanyLogos    = "company-logos"
)

// MaxUploadBytes caps the size of a single uploaded file.
const MaxUploadBytes = 5 << 20

var (
	ErrUnknownBucket = errors.New("unknown upload bucket")
	ErrFileTooLarge  = errors.New("file exceeds the 5 MB limit")
	ErrEmptyFile     = errors.New("file is empty")
)

// ObjectStore is the part of object storage uploads need.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

// UploadService stores user files. Logical buckets are key prefixes inside
// the single configured storage bucket.
type UploadService struct {
	objects ObjectStore
	newID   func() string
}

func NewUploadService(objects ObjectStore) *UploadService {
	return &UploadService{objects: objects, newID: ids.NewKSUID}
}

// ValidBucket reports whether bucket is one of the upload buckets.
func ValidBucket(bucket string) bool {
	switch bucket {
	case BucketProfilePictures, BucketResumes, BucketCompanyLogos:
		return true
	default:
		return false
	}
}

// Upload stores r under "<bucket>/<userID>-<id>.<ext>" and returns its public URL.
func (s *UploadService) Upload(ctx context.Context, bucket, userID, filename string, r io.Reader, size int64, contentType string) (string, error) {
	if !ValidBucket(bucket) {
		return "", fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	if size <= 0 {
		return "", ErrEmptyFile
	}
	if size > MaxUploadBytes {
		return "", ErrFileTooLarge
	}

	key := ObjectKey(bucket, userID, s.newID(), filename)
	if err := s.objects.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return s.objects.PublicURL(key), nil
}

// ObjectKey builds the storage key of an upload.
func ObjectKey(bucket, userID, id, filename string) string {
	name := userID + "-" + id
	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), ".")); ext != "" {
		name += "." + ext
	}
	return bucket + "/" + name
}
