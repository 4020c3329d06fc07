package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ozrentals/drivenow-scraper/internal/config"
)

// R2 archives screenshots in a Cloudflare R2 bucket through its S3 API.
type R2 struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    *slog.Logger
}

func NewR2(cfg config.StorageConfig) (*R2, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("missing R2 credentials: set CLOUDFLARE_ACCOUNT_ID, CLOUDFLARE_R2_ACCESS_KEY_ID, CLOUDFLARE_R2_SECRET_ACCESS_KEY and CLOUDFLARE_R2_BUCKET_NAME")
	}

	endpoint := fmt.Sprintf("%s.r2.cloudflarestorage.com", cfg.AccountID)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: true,
		Region: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create R2 client: %w", err)
	}

	return &R2{
		client:    client,
		bucket:    cfg.BucketName,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		logger:    slog.Default().With("component", "r2"),
	}, nil
}

// Upload stores a local file under objectPath and returns the stable
// reference to record in the database.
func (r *R2) Upload(ctx context.Context, localPath, objectPath string) (string, error) {
	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".jpg", ".jpeg":
		contentType = "image/jpeg"
	case ".png":
		contentType = "image/png"
	}

	info, err := r.client.FPutObject(ctx, r.bucket, objectPath, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	r.logger.Debug("uploaded screenshot", "object", objectPath, "bytes", info.Size)

	return ObjectRef(r.publicURL, r.bucket, objectPath), nil
}

func (r *R2) Delete(ctx context.Context, objectPath string) error {
	if err := r.client.RemoveObject(ctx, r.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", objectPath, err)
	}
	return nil
}

// DeleteRef deletes the object a stored reference points at. References the
// keeper does not recognize are skipped.
func (r *R2) DeleteRef(ctx context.Context, ref string) error {
	object, ok := r.PathFromRef(ref)
	if !ok {
		r.logger.Warn("skipping unrecognized screenshot reference", "ref", ref)
		return nil
	}
	return r.Delete(ctx, object)
}

func (r *R2) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := r.client.StatObject(ctx, r.bucket, objectPath, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", objectPath, err)
	}
	return true, nil
}

// List returns the object paths under prefix.
func (r *R2) List(ctx context.Context, prefix string) ([]string, error) {
	var objects []string
	for obj := range r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, obj.Err)
		}
		objects = append(objects, obj.Key)
	}
	return objects, nil
}

// UploadAndRemove uploads the file and deletes the local copy on success.
func (r *R2) UploadAndRemove(ctx context.Context, localPath, objectPath string) (string, error) {
	ref, err := r.Upload(ctx, localPath, objectPath)
	if err != nil {
		return "", err
	}
	if err := os.Remove(localPath); err != nil {
		r.logger.Warn("failed to remove local screenshot after upload", "path", localPath, "error", err)
	}
	return ref, nil
}

// PathFromRef recovers the object path from a stored reference.
func (r *R2) PathFromRef(ref string) (string, bool) {
	return ParseObjectRef(ref, r.publicURL, r.bucket)
}

// ObjectRef builds the reference stored in the database: a public URL when
// the bucket has one, otherwise an r2:// locator.
func ObjectRef(publicURL, bucket, objectPath string) string {
	if publicURL != "" {
		return fmt.Sprintf("%s/%s", strings.TrimRight(publicURL, "/"), objectPath)
	}
	return fmt.Sprintf("r2://%s/%s", bucket, objectPath)
}

// ParseObjectRef inverts ObjectRef.
func ParseObjectRef(ref, publicURL, bucket string) (string, bool) {
	if publicURL != "" {
		prefix := strings.TrimRight(publicURL, "/") + "/"
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix), true
		}
	}
	prefix := fmt.Sprintf("r2://%s/", bucket)
	if strings.HasPrefix(ref, prefix) {
		return strings.TrimPrefix(ref, prefix), true
	}
	return "", false
}
