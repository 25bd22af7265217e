package entity

import (
	"time"

	"github.com/google/uuid"
)

// FileRecord is an uploaded document registered in the store.
type FileRecord struct {
	Id         uuid.UUID
	Name       string
	MediaType  string
	SizeBytes  int64
	UploadedAt time.Time
	Processed  bool
}

// RawFile is an upload as it arrives from a client, before ingestion.
type RawFile struct {
	Name      string
	MediaType string
	Data      []byte
}
