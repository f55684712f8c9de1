package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kimhsiao/resaletally/internal/models"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
)

// DefaultObjectPrefix is the key prefix for user documents.
const DefaultObjectPrefix = "user_data/"

var errObjectNotFound = errors.New("object not found")

// objectAPI is the subset of minio.Client the store uses.
type objectAPI interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// minioAPI adapts *minio.Client to objectAPI.
type minioAPI struct {
	client *minio.Client
}

func (m *minioAPI) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateObjectErr(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateObjectErr(err)
	}
	return data, nil
}

func (m *minioAPI) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (m *minioAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.client.BucketExists(ctx, bucket)
}

func translateObjectErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errObjectNotFound
	}
	return err
}

// ObjectStore keeps one JSON document per user code in an S3-compatible
// bucket. The object is the whole RemoteDocument, so a put is an upsert.
type ObjectStore struct {
	api    objectAPI
	bucket string
	prefix string

	beacons
}

// NewObjectStore connects to the configured provider.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object storage bucket is required")
	}

	ep, err := resolveEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	lookup := minio.BucketLookupDNS
	if ep.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(ep.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       ep.Secure,
		Region:       ep.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return newObjectStore(&minioAPI{client: client}, cfg.Bucket, cfg.Prefix), nil
}

func newObjectStore(api objectAPI, bucket, prefix string) *ObjectStore {
	if prefix == "" {
		prefix = DefaultObjectPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ObjectStore{api: api, bucket: bucket, prefix: prefix}
}

// Key returns the object key for userID.
func (s *ObjectStore) Key(userID string) string {
	return s.prefix + userID + ".json"
}

// Fetch returns the document for userID.
func (s *ObjectStore) Fetch(ctx context.Context, userID string) (*models.RemoteDocument, error) {
	data, err := s.api.GetObject(ctx, s.bucket, s.Key(userID))
	if err != nil {
		if errors.Is(err, errObjectNotFound) {
			return nil, syncpkg.ErrRemoteNotFound
		}
		return nil, fmt.Errorf("get %s: %w", s.Key(userID), err)
	}

	var doc models.RemoteDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Key(userID), err)
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("object %s belongs to %q", s.Key(userID), doc.UserID)
	}
	return &doc, nil
}

// Upsert writes the document for doc.UserID.
func (s *ObjectStore) Upsert(ctx context.Context, doc *models.RemoteDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := s.api.PutObject(ctx, s.bucket, s.Key(doc.UserID), data); err != nil {
		return fmt.Errorf("put %s: %w", s.Key(doc.UserID), err)
	}
	return nil
}

// Ping checks that the bucket is reachable and exists.
func (s *ObjectStore) Ping(ctx context.Context) error {
	ok, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", s.bucket)
	}
	return nil
}

// SendBeacon upserts doc in the background.
func (s *ObjectStore) SendBeacon(doc *models.RemoteDocument) {
	s.send("s3", s.Upsert, doc)
}

// WaitBeacons waits for in-flight beacons.
func (s *ObjectStore) WaitBeacons(timeout time.Duration) bool {
	return s.wait(timeout)
}

var (
	_ syncpkg.RemoteStore  = (*ObjectStore)(nil)
	_ syncpkg.BeaconSender = (*ObjectStore)(nil)
	_ syncpkg.Pinger       = (*ObjectStore)(nil)
)
