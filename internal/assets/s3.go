// internal/assets/s3.go
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// S3Config holds connection settings for an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
}

// S3Store keeps assets as objects in one bucket, named exactly like FileStore names files.
type S3Store struct {
	cl     *minio.Client
	bucket string
	region string
	log    zerolog.Logger
	namer  *Namer
}

func NewS3Store(cfg S3Config, opts ...Option) (*S3Store, error) {
	mo := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		mo.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, mo)
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	o := buildOptions(opts)
	return &S3Store{
		cl:     cl,
		bucket: cfg.Bucket,
		region: cfg.Region,
		log:    o.logger.With().Str("component", "assets.s3").Str("bucket", cfg.Bucket).Logger(),
		namer:  o.namer,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	ok, err := s.cl.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.cl.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.log.Info().Msg("bucket created")
	return nil
}

// Store uploads data under a freshly generated name. The put is conditional
// on the key not existing yet, so a name clash with another writer of the same
// bucket never replaces its object; the name is regenerated instead.
func (s *S3Store) Store(ctx context.Context, data []byte, nameHint string) (Ref, error) {
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	contentType := http.DetectContentType(data)

	for attempt := 0; attempt < maxNameRetries; attempt++ {
		ref := s.namer.Next(nameHint)
		opts := minio.PutObjectOptions{ContentType: contentType}
		opts.SetMatchETagExcept("*")

		_, err := s.cl.PutObject(ctx, s.bucket, string(ref), bytes.NewReader(data), int64(len(data)), opts)
		if err == nil {
			s.log.Debug().Str("asset", ref.String()).Int("bytes", len(data)).Msg("asset stored")
			return ref, nil
		}
		if !isNameTaken(err) {
			return "", fmt.Errorf("put asset %s: %w", ref, err)
		}
		s.log.Warn().Str("asset", ref.String()).Msg("asset name taken, regenerating")
	}
	return "", fmt.Errorf("put asset: no free name after %d attempts", maxNameRetries)
}

// Delete removes the object. S3 reports success for missing keys, which gives
// us idempotency for free.
func (s *S3Store) Delete(ctx context.Context, ref Ref) error {
	if !ValidRef(ref) {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	if err := s.cl.RemoveObject(ctx, s.bucket, string(ref), minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("delete asset %s: %w", ref, err)
	}
	return nil
}

func (s *S3Store) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if !ValidRef(ref) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	obj, err := s.cl.GetObject(ctx, s.bucket, string(ref), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.fetchErr(ref, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only shows up on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.fetchErr(ref, err)
	}
	return data, nil
}

func (s *S3Store) fetchErr(ref Ref, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return fmt.Errorf("read asset %s: %w", ref, err)
}

func (s *S3Store) List(ctx context.Context) ([]Info, error) {
	var infos []Info
	for obj := range s.cl.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list assets: %w", obj.Err)
		}
		// Keys this store never generated are not assets.
		if !ValidRef(Ref(obj.Key)) {
			continue
		}
		infos = append(infos, Info{Ref: Ref(obj.Key), Size: obj.Size, ModTime: obj.LastModified})
	}
	return infos, nil
}

func isNameTaken(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == minio.PreconditionFailed || resp.StatusCode == http.StatusPreconditionFailed
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
