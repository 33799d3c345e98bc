// Package artifact stores generated report documents. It defines the Store
// interface with in-memory, PostgreSQL and S3 implementations, and Echo
// handlers for download, metadata, listing and deletion.
package artifact

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrNotFound           = errors.New("artifact not found")
	ErrTooLarge           = errors.New("artifact exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrMissingOwner       = errors.New("consultation id is required")
)

// MaxSize is the maximum stored document size in bytes (25 MB).
const MaxSize = 25 * 1024 * 1024

// ContentTypePDF is the content type of generated reports.
const ContentTypePDF = "application/pdf"

// AllowedContentTypes lists the document types a Store accepts.
var AllowedContentTypes = map[string]bool{
	ContentTypePDF: true,
}

// Metadata describes a stored document.
type Metadata struct {
	ID             string    `json:"id"`
	ConsultationID string    `json:"consultation_id"`
	PatientID      string    `json:"patient_id,omitempty"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	Size           int64     `json:"size"`
	Hash           string    `json:"hash"`
	Pages          int       `json:"pages,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      string    `json:"created_by,omitempty"`
}

// Store is the contract for artifact storage backends.
type Store interface {
	Save(ctx context.Context, meta Metadata, content []byte) (*Metadata, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error)
	GetMetadata(ctx context.Context, id string) (*Metadata, error)
	ListByConsultation(ctx context.Context, consultationID string, limit, offset int) ([]*Metadata, int, error)
	Delete(ctx context.Context, id string) error
}

// prepare validates meta and fills in the fields every backend derives from
// the content. ID and CreatedAt are left to the caller.
func prepare(meta Metadata, content []byte) (Metadata, error) {
	if strings.TrimSpace(meta.FileName) == "" {
		return meta, ErrMissingFileName
	}
	if meta.ConsultationID == "" {
		return meta, ErrMissingOwner
	}
	if meta.ContentType == "" {
		meta.ContentType = ContentTypePDF
	}
	if !AllowedContentTypes[meta.ContentType] {
		return meta, fmt.Errorf("%w: %s", ErrInvalidContentType, meta.ContentType)
	}
	if len(content) > MaxSize {
		return meta, ErrTooLarge
	}
	meta.Size = int64(len(content))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(content))
	return meta, nil
}

// FileName is the download name of a consultation report.
func FileName(consultationID string, generatedAt time.Time) string {
	return fmt.Sprintf("consultation-report-%s-%s.pdf", consultationID, generatedAt.UTC().Format("20060102T150405Z"))
}

func window(n, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
