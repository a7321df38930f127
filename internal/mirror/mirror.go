// Package mirror copies freshly written backup files to S3 compatible
// object storage, so a second copy of the fleet history survives the
// host the agent runs on.
package mirror

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fleetsink-io/fleetsink/pkg/log"
	"github.com/fleetsink-io/fleetsink/pkg/options"
)

const contentTypeCSV = "text/csv"

// objectStore is the slice of the minio client the mirror relies on.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror uploads device backup files to a bucket after each cycle.
type Mirror struct {
	client     objectStore
	bucketName string
	region     string

	mu      sync.Mutex
	checked bool
}

// New creates a mirror talking to the endpoint described in opts.
func New(opts *options.S3Options) (*Mirror, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.InsecureSkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Mirror{
		client:     client,
		bucketName: opts.BucketName,
		region:     opts.Region,
	}, nil
}

// ensureBucket verifies the target bucket once per process, creating it
// when it does not exist yet.
func (m *Mirror) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checked {
		return nil
	}

	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", m.bucketName)
		if err := m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{Region: m.region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	m.checked = true
	return nil
}

// UploadFiles pushes each local file to the bucket under the given object
// name. A file that fails to upload is logged and skipped so the rest of
// the set still makes it out; the first failure is returned once every
// upload was attempted.
func (m *Mirror) UploadFiles(ctx context.Context, files map[string]string) error {
	if len(files) == 0 {
		return nil
	}
	if err := m.ensureBucket(ctx); err != nil {
		return err
	}

	objects := make([]string, 0, len(files))
	for object := range files {
		objects = append(objects, object)
	}
	sort.Strings(objects)

	var firstErr error
	for _, object := range objects {
		opts := minio.PutObjectOptions{ContentType: contentTypeCSV}
		if _, err := m.client.FPutObject(ctx, m.bucketName, object, files[object], opts); err != nil {
			log.Error(err, "Failed to mirror backup file", "bucket", m.bucketName, "object", object)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to upload %s: %w", object, err)
			}
			continue
		}
		log.Debug("Mirrored backup file", "bucket", m.bucketName, "object", object)
	}
	return firstErr
}
