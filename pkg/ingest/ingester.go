package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"docchat-be/internal/constant"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const DefaultMaxBytes = 10 * 1024 * 1024

// Result is a registered record plus the text extracted from it.
type Result struct {
	Record entity.FileRecord
	Text   string
}

// Ingester turns uploads into file records. Only plain text is actually read;
// other formats get a placeholder extraction.
type Ingester struct {
	maxBytes int64
	logger   logger.ILogger
	now      func() time.Time
}

func NewIngester(maxBytes int64, log logger.ILogger) *Ingester {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Ingester{maxBytes: maxBytes, logger: log, now: time.Now}
}

// Extension returns the lower-cased extension of name including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// IsSupported reports whether name has one of the accepted extensions.
func IsSupported(name string) bool {
	return slices.Contains(constant.SupportedExtensions, Extension(name))
}

// Partition splits a batch into supported and skipped uploads, preserving order.
func Partition(files []entity.RawFile) (accepted []entity.RawFile, skipped []string) {
	for _, f := range files {
		if IsSupported(f.Name) {
			accepted = append(accepted, f)
		} else {
			skipped = append(skipped, f.Name)
		}
	}
	return accepted, skipped
}

func (i *Ingester) Ingest(ctx context.Context, raw entity.RawFile) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &IOError{Name: raw.Name, Err: err}
	}

	ext := Extension(raw.Name)
	if !IsSupported(raw.Name) {
		return nil, &UnsupportedFormatError{Name: raw.Name, Extension: ext}
	}
	if int64(len(raw.Data)) > i.maxBytes {
		return nil, fmt.Errorf("%s (%d bytes): %w", raw.Name, len(raw.Data), ErrFileTooLarge)
	}

	text, err := i.extractText(raw, ext)
	if err != nil {
		return nil, err
	}

	record := entity.FileRecord{
		Id:         uuid.New(),
		Name:       filepath.Base(raw.Name),
		MediaType:  detectMediaType(raw, ext),
		SizeBytes:  int64(len(raw.Data)),
		UploadedAt: i.now(),
		Processed:  true,
	}

	i.logger.Info("Ingest", "File ingested", map[string]interface{}{
		"file_id":    record.Id.String(),
		"name":       record.Name,
		"media_type": record.MediaType,
		"size":       record.SizeBytes,
	})

	return &Result{Record: record, Text: text}, nil
}

func (i *Ingester) extractText(raw entity.RawFile, ext string) (string, error) {
	if ext != ".txt" {
		return fmt.Sprintf("Content from %s. This is a sample text that would be extracted from the uploaded file.", filepath.Base(raw.Name)), nil
	}
	if !utf8.Valid(raw.Data) {
		return "", &IOError{Name: raw.Name, Err: fmt.Errorf("text file is not valid UTF-8")}
	}
	return string(raw.Data), nil
}

// detectMediaType prefers the client type, then content sniffing, then application/<ext>.
func detectMediaType(raw entity.RawFile, ext string) string {
	if raw.MediaType != "" && raw.MediaType != "application/octet-stream" {
		return raw.MediaType
	}
	if len(raw.Data) > 0 {
		if mt := mimetype.Detect(raw.Data); mt.String() != "application/octet-stream" {
			return mt.String()
		}
	}
	return "application/" + strings.TrimPrefix(ext, ".")
}
