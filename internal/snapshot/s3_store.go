package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures the S3-compatible snapshot backend.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Store keeps each snapshot as one object under snapshots/. The handle is
// the object's base name.
type S3Store struct {
	client *minio.Client
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

const s3Prefix = "snapshots/"

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{client: client, bucket: bucket, region: region}, nil
}

func (s *S3Store) Close() error { return nil }

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Save uploads the snapshot in a single PutObject, which is atomic on the
// object store side: the key is visible only once fully written.
func (s *S3Store) Save(ctx context.Context, snap *Snapshot) (string, error) {
	if err := snap.Validate(); err != nil {
		return "", fmt.Errorf("refusing to save invalid snapshot: %w", err)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("ensure bucket: %w", err)
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	handle := filePrefix + snap.Metadata.CreatedAt.UTC().Format("20060102_150405") + ".json"
	_, err = s.client.PutObject(ctx, s.bucket, s3Prefix+handle,
		bytes.NewReader(raw), int64(len(raw)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return "", err
	}
	return handle, nil
}

func (s *S3Store) Load(ctx context.Context, handle string) (*Snapshot, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s3Prefix+strings.TrimSpace(handle), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, &CorruptError{Handle: handle, Err: err}
	}
	if err := snap.Validate(); err != nil {
		return nil, &CorruptError{Handle: handle, Err: err}
	}
	return &snap, nil
}

// List stats every object under the prefix; metadata comes from the object
// documents themselves, so listing is O(n) downloads. Snapshot counts are
// small enough that this beats maintaining a separate index object.
func (s *S3Store) List(ctx context.Context) ([]HandleInfo, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	var infos []HandleInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s3Prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		handle := strings.TrimPrefix(obj.Key, s3Prefix)
		if handle == "" {
			continue
		}
		snap, err := s.Load(ctx, handle)
		if err != nil {
			continue
		}
		infos = append(infos, HandleInfo{
			Handle:     handle,
			RepoRef:    snap.Metadata.RepoRef,
			TotalFiles: snap.Metadata.TotalFiles,
			CreatedAt:  snap.Metadata.CreatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}
