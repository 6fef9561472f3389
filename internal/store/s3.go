package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/golang/snappy"

	"github.com/vaultds/segmentstore/internal/segerr"
)

// S3Config configures the S3-backed store.
type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3Store implements PersistentStore on top of AWS S3, using conditional
// PUT (If-Match on ETag) as the CAS primitive for the summary object.
type S3Store struct {
	client     *s3.Client
	bucket     string
	prefix     string
	maxRetries int
}

// NewS3Store creates an S3-backed store for the given bucket.
func NewS3Store(ctx context.Context, bucket, prefix string, cfg S3Config) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &S3Store{
		client:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:     bucket,
		prefix:     prefix,
		maxRetries: 3,
	}, nil
}

func (s *S3Store) key(parts ...string) string {
	key := s.prefix
	for _, p := range parts {
		key += "/" + p
	}
	return key
}

func (s *S3Store) summaryKey(partition, segment string) string {
	return s.key(partition, segment, "summary.bin")
}

func (s *S3Store) chunkKey(partition, segment string, chunkID [16]byte, name string) string {
	return s.key(partition, segment, "chunks", hex.EncodeToString(chunkID[:]), name)
}

// summaryEnvelope is version||payload: the version is embedded so a reader
// can validate what it fetched against what CASSummary later observes,
// independent of S3's own ETag.
func encodeSummaryEnvelope(version int64, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf[:8], uint64(version))
	copy(buf[8:], payload)
	return buf
}

func decodeSummaryEnvelope(data []byte) (int64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, segerr.MetadataException("store: summary envelope too short")
	}
	return int64(binary.BigEndian.Uint64(data[:8])), data[8:], nil
}

func (s *S3Store) LoadSummary(ctx context.Context, partition, segment string) (int64, []byte, bool, error) {
	body, _, err := s.getObject(ctx, s.summaryKey(partition, segment))
	if errors.Is(err, errObjectNotFound) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, segerr.StoreError("store: failed to load summary", err)
	}

	version, payload, err := decodeSummaryEnvelope(body)
	if err != nil {
		return 0, nil, false, err
	}
	return version, payload, true, nil
}

func (s *S3Store) WriteChunk(ctx context.Context, partition, segment string, chunkID [16]byte, metaBytes, keyBytes []byte, columnBytes []ColumnBytes) error {
	if err := s.putObject(ctx, s.chunkKey(partition, segment, chunkID, "meta.bin"), metaBytes, ""); err != nil {
		return segerr.StoreError("store: failed to write chunk metadata", err)
	}
	if err := s.putObject(ctx, s.chunkKey(partition, segment, chunkID, "keys.bin"), keyBytes, ""); err != nil {
		return segerr.StoreError("store: failed to write chunk keys", err)
	}
	for _, col := range columnBytes {
		compressed := snappy.Encode(nil, col.Bytes)
		if err := s.putObject(ctx, s.chunkKey(partition, segment, chunkID, "col_"+col.Column+".bin"), compressed, ""); err != nil {
			return segerr.StoreError("store: failed to write chunk column "+col.Column, err)
		}
	}
	return nil
}

// CASSummary re-reads the summary's ETag immediately before the conditional
// PUT to minimize (but, per the underlying ConditionalPut contract, not
// eliminate for the absent-object case) the race window between the version
// check and the write.
func (s *S3Store) CASSummary(ctx context.Context, partition, segment string, expectedVersion, newVersion int64, newSummaryBytes []byte) (bool, error) {
	key := s.summaryKey(partition, segment)

	body, etag, err := s.getObject(ctx, key)
	if err != nil && !errors.Is(err, errObjectNotFound) {
		return false, segerr.StoreError("store: failed to read summary for CAS", err)
	}

	currentVersion := int64(0)
	if err == nil {
		currentVersion, _, err = decodeSummaryEnvelope(body)
		if err != nil {
			return false, err
		}
	}
	if currentVersion != expectedVersion {
		return false, nil
	}

	envelope := encodeSummaryEnvelope(newVersion, newSummaryBytes)
	if err := s.conditionalPut(ctx, key, envelope, etag); err != nil {
		if errors.Is(err, errPreconditionFailed) {
			return false, nil
		}
		return false, segerr.StoreError("store: failed to commit summary", err)
	}
	return true, nil
}

func (s *S3Store) LoadChunkKeys(ctx context.Context, partition, segment string, chunkID [16]byte) ([]byte, error) {
	body, _, err := s.getObject(ctx, s.chunkKey(partition, segment, chunkID, "keys.bin"))
	if errors.Is(err, errObjectNotFound) {
		return nil, segerr.NotFound(segerr.CodeSegmentNotFound, "store: chunk keys not found")
	}
	if err != nil {
		return nil, segerr.StoreError("store: failed to load chunk keys", err)
	}
	return body, nil
}

func (s *S3Store) LoadChunkColumns(ctx context.Context, partition, segment string, chunkID [16]byte, columnSubset []string) ([]ColumnBytes, error) {
	result := make([]ColumnBytes, 0, len(columnSubset))
	for _, col := range columnSubset {
		body, _, err := s.getObject(ctx, s.chunkKey(partition, segment, chunkID, "col_"+col+".bin"))
		if errors.Is(err, errObjectNotFound) {
			return nil, segerr.NotFound(segerr.CodeSegmentNotFound, "store: chunk column not found: "+col)
		}
		if err != nil {
			return nil, segerr.StoreError("store: failed to load chunk column "+col, err)
		}
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, segerr.StoreError("store: failed to decompress chunk column "+col, err)
		}
		result = append(result, ColumnBytes{Column: col, Bytes: decoded})
	}
	return result, nil
}

func (s *S3Store) LoadChunkMeta(ctx context.Context, partition, segment string, chunkID [16]byte) ([]byte, error) {
	body, _, err := s.getObject(ctx, s.chunkKey(partition, segment, chunkID, "meta.bin"))
	if errors.Is(err, errObjectNotFound) {
		return nil, segerr.NotFound(segerr.CodeSegmentNotFound, "store: chunk metadata not found")
	}
	if err != nil {
		return nil, segerr.StoreError("store: failed to load chunk metadata", err)
	}
	return body, nil
}

func (s *S3Store) Initialize(ctx context.Context) error {
	return nil
}

func (s *S3Store) ClearAll(ctx context.Context) error {
	keys, err := s.listObjects(ctx, s.prefix)
	if err != nil {
		return segerr.StoreError("store: failed to list objects for clear", err)
	}
	for _, k := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)}); err != nil {
			return segerr.StoreError("store: failed to delete object during clear", err)
		}
	}
	return nil
}

func (s *S3Store) DeleteProjection(ctx context.Context, partition, segment string) error {
	keys, err := s.listObjects(ctx, s.key(partition, segment))
	if err != nil {
		return segerr.StoreError("store: failed to list projection objects", err)
	}
	for _, k := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)}); err != nil {
			return segerr.StoreError("store: failed to delete projection object", err)
		}
	}
	return nil
}

// ScanSplits is unimplemented: split planning is query-execution machinery,
// out of scope for this segment model (spec.md Non-goals).
func (s *S3Store) ScanSplits(ctx context.Context, opts ScanSplitsOptions) ([]Split, error) {
	return nil, segerr.InternalError("store: ScanSplits is not implemented by S3Store", nil)
}

var (
	errObjectNotFound     = errors.New("store: object not found")
	errPreconditionFailed = errors.New("store: precondition failed")
)

func (s *S3Store) getObject(ctx context.Context, key string) ([]byte, string, error) {
	var body []byte
	var etag string
	err := s.retryWithBackoff(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
		if err != nil {
			var noSuchKey *s3types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return errObjectNotFound
			}
			return err
		}
		defer resp.Body.Close()
		buf := &bytes.Buffer{}
		if _, err := io.Copy(buf, resp.Body); err != nil {
			return err
		}
		body = buf.Bytes()
		etag = aws.ToString(resp.ETag)
		return nil
	})
	return body, etag, err
}

func (s *S3Store) putObject(ctx context.Context, key string, data []byte, ifMatch string) error {
	return s.retryWithBackoff(ctx, func() error {
		input := &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		}
		if ifMatch != "" {
			input.IfMatch = aws.String(ifMatch)
		}
		_, err := s.client.PutObject(ctx, input)
		return err
	})
}

// conditionalPut mirrors the ConditionalPut contract used elsewhere against
// S3: a non-empty etag enforces If-Match; an empty etag performs a plain PUT
// and does not itself guarantee create-only semantics against a concurrent
// first writer (documented in DESIGN.md).
func (s *S3Store) conditionalPut(ctx context.Context, key string, data []byte, etag string) error {
	err := s.putObject(ctx, key, data, etag)
	if err != nil && isS3PreconditionFailed(err) {
		return errPreconditionFailed
	}
	return err
}

func (s *S3Store) listObjects(ctx context.Context, prefix string) ([]string, error) {
	var objects []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, aws.ToString(obj.Key))
		}
	}
	return objects, nil
}

func isS3PreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return containsSubstring(errStr, "PreconditionFailed") || containsSubstring(errStr, "412")
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func (s *S3Store) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errObjectNotFound) || isS3PreconditionFailed(lastErr) {
			return lastErr
		}

		if attempt < s.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
