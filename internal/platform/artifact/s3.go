package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store writes each document as two objects, the PDF and a JSON metadata
// sidecar, and keeps a per-consultation JSONL manifest of artifact ids:
//
//	<prefix>/objects/<id>.pdf
//	<prefix>/objects/<id>.json
//	<prefix>/by-consultation/<consultation_id>.jsonl
//
// S3 has no append, so the manifest is updated with read-modify-write.
// Deleted artifacts stay in the manifest and are skipped when listing.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	logger zerolog.Logger
}

func NewS3Store(client S3API, bucket, prefix string, logger zerolog.Logger) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "reports/v1"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

type manifestEntry struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

func (s *S3Store) contentKey(id string) string { return path.Join(s.prefix, "objects", id+".pdf") }
func (s *S3Store) metaKey(id string) string { return path.Join(s.prefix, "objects", id+".json") }
func (s *S3Store) manifestKey(consultationID string) string {
	return path.Join(s.prefix, "by-consultation", consultationID+".jsonl")
}

func (s *S3Store) Save(ctx context.Context, meta Metadata, content []byte) (*Metadata, error) {
	meta, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	meta.ID = uuid.New().String()
	meta.CreatedAt = time.Now().UTC()

	if err := s.put(ctx, s.contentKey(meta.ID), content, meta.ContentType); err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("artifact: marshal metadata: %w", err)
	}
	if err := s.put(ctx, s.metaKey(meta.ID), metaJSON, "application/json"); err != nil {
		return nil, err
	}

	if err := s.appendManifest(ctx, meta); err != nil {
		// The document itself is stored; only listing is affected.
		s.logger.Warn().Err(err).
			Str("artifact_id", meta.ID).
			Str("consultation_id", meta.ConsultationID).
			Msg("failed to append artifact manifest")
	}

	s.logger.Info().
		Str("artifact_id", meta.ID).
		Str("s3_key", s.contentKey(meta.ID)).
		Int64("size", meta.Size).
		Msg("stored report artifact")
	return &meta, nil
}

func (s *S3Store) Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.contentKey(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("artifact: s3 get %s: %w", s.contentKey(id), err)
	}
	return out.Body, meta, nil
}

func (s *S3Store) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	data, err := s.get(ctx, s.metaKey(id))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("artifact: decode metadata %s: %w", id, err)
	}
	return &meta, nil
}

func (s *S3Store) ListByConsultation(ctx context.Context, consultationID string, limit, offset int) ([]*Metadata, int, error) {
	data, err := s.get(ctx, s.manifestKey(consultationID))
	if errors.Is(err, ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var all []*Metadata
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry manifestEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			s.logger.Warn().Err(err).Str("consultation_id", consultationID).Msg("skipping bad manifest line")
			continue
		}
		meta, err := s.GetMetadata(ctx, entry.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		all = append(all, meta)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start, end := window(len(all), limit, offset)
	return all[start:end], len(all), nil
}

func (s *S3Store) Delete(ctx context.Context, id string) error {
	if _, err := s.GetMetadata(ctx, id); err != nil {
		return err
	}
	for _, key := range []string{s.contentKey(id), s.metaKey(id)} {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("artifact: s3 delete %s: %w", key, err)
		}
	}
	return nil
}

func (s *S3Store) appendManifest(ctx context.Context, meta Metadata) error {
	line, err := json.Marshal(manifestEntry{ID: meta.ID, CreatedAt: meta.CreatedAt.Format(time.RFC3339Nano)})
	if err != nil {
		return err
	}

	key := s.manifestKey(meta.ConsultationID)
	existing, err := s.get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if n := len(existing); n > 0 && existing[n-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')
	return s.put(ctx, key, buf.Bytes(), "application/x-ndjson")
}

func (s *S3Store) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("artifact: s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("artifact: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}
