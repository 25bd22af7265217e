package ingest

import (
	"errors"
	"fmt"
)

var ErrFileTooLarge = errors.New("ingest: file exceeds the upload limit")

type UnsupportedFormatError struct {
	Name      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("ingest: %q has no file extension", e.Name)
	}
	return fmt.Sprintf("ingest: unsupported format %q for %q", e.Extension, e.Name)
}

// IOError wraps a failure to read the upload.
type IOError struct {
	Name string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ingest: reading %q: %v", e.Name, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
