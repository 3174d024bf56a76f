package recording

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// defaultPresignExpiry is the validity window for a presigned GET, per
// §4.7's "default validity 7 days".
const defaultPresignExpiry = 7 * 24 * time.Hour

// ObjectStore puts recording assets in S3-compatible storage and mints
// presigned read URLs, grounded on the retrieved pack's S3Store (same
// client/presign-client pairing, same path-style override for
// non-AWS endpoints) narrowed to the one object class this domain
// needs — finalized call recordings — instead of a general audio store.
type ObjectStore struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	prefix        string
	presignExpiry time.Duration
}

// ObjectStoreConfig configures an ObjectStore.
type ObjectStoreConfig struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string // non-empty for an S3-compatible, non-AWS endpoint
}

// NewObjectStore builds an ObjectStore from the ambient AWS config chain
// (environment/shared-config credentials), matching the teacher pack's own
// `awsconfig.LoadDefaultConfig` idiom.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("recording: loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &ObjectStore{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		presignExpiry: defaultPresignExpiry,
	}, nil
}

func (s *ObjectStore) objectKey(providerID, workerID, rootCallID, ext string) string {
	if s.prefix != "" {
		return fmt.Sprintf("%s/%s/%s/%s/recording.%s", s.prefix, providerID, workerID, rootCallID, ext)
	}
	return fmt.Sprintf("%s/%s/%s/recording.%s", providerID, workerID, rootCallID, ext)
}

// Put uploads a finalized recording asset with server-side encryption at
// the deterministic key §4.7 names.
func (s *ObjectStore) Put(ctx context.Context, providerID, workerID, rootCallID, ext string, data []byte) (string, error) {
	key := s.objectKey(providerID, workerID, rootCallID, ext)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               &s.bucket,
		Key:                  &key,
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(contentTypeForExt(ext)),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
		StorageClass:         types.StorageClassStandardIa,
	})
	if err != nil {
		return "", fmt.Errorf("recording: uploading %s: %w", key, err)
	}
	return key, nil
}

// PresignedURL mints a time-limited GET URL for a previously-uploaded key.
func (s *ObjectStore) PresignedURL(ctx context.Context, key string) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.presignExpiry
	})
	if err != nil {
		return "", fmt.Errorf("recording: presigning %s: %w", key, err)
	}
	return req.URL, nil
}

// PruneExpired deletes every object under this store's prefix whose
// LastModified is older than cutoff, implementing the recording-retention
// window (§4.7). It returns the keys it deleted. Listing is paginated via
// ListObjectsV2's continuation token; a failed delete for one key does not
// stop the sweep over the rest.
func (s *ObjectStore) PruneExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	var deleted []string
	var firstErr error
	var continuationToken *string

	for {
		page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            aws.String(s.prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return deleted, fmt.Errorf("recording: listing objects for retention sweep: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.LastModified == nil || obj.LastModified.After(cutoff) {
				continue
			}
			key := *obj.Key
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: &s.bucket,
				Key:    &key,
			}); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("recording: deleting expired object %s: %w", key, err)
				}
				continue
			}
			deleted = append(deleted, key)
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			return deleted, firstErr
		}
		continuationToken = page.NextContinuationToken
	}
}

func contentTypeForExt(ext string) string {
	switch ext {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// FetchCarrierAsset downloads the carrier-hosted recording so it can be
// re-uploaded to the ObjectStore.
func FetchCarrierAsset(ctx context.Context, httpGet func(ctx context.Context, url string) (io.ReadCloser, error), url string) ([]byte, error) {
	body, err := httpGet(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("recording: fetching carrier asset: %w", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("recording: reading carrier asset: %w", err)
	}
	return data, nil
}
