package crossbar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"sync"
)

// UploadedFile is one file received in a multipart request, spooled to a
// temporary file. The dispatcher deletes it automatically after the response
// completes unless the application calls MarkKeepAlive first.
type UploadedFile struct {
	// FieldName is the multipart form field the file arrived under
	FieldName string

	// Name is the client-supplied file name
	Name string

	// Size is the spooled size in bytes
	Size int64

	// MimeType is the part's declared Content-Type
	MimeType string

	// ContentHash is the hex-encoded SHA-256 of the file contents
	ContentHash string

	tmpPath string

	mu        sync.Mutex
	keepAlive bool
	cleaned   bool
}

// Open returns a reader over the spooled file contents. The caller owns the
// returned handle and must close it.
func (f *UploadedFile) Open() (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cleaned {
		return nil, fmt.Errorf("uploaded file %q has already been cleaned up", f.Name)
	}
	return os.Open(f.tmpPath)
}

// MarkKeepAlive exempts the file from automatic cleanup at request end.
// Application code must call it before the response completes if the file is
// needed afterwards.
func (f *UploadedFile) MarkKeepAlive() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keepAlive = true
}

// KeepAlive reports whether the file is exempt from automatic cleanup
func (f *UploadedFile) KeepAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keepAlive
}

// Cleanup deletes the spooled file. It is idempotent and safe to call
// multiple times.
func (f *UploadedFile) Cleanup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cleaned {
		return nil
	}
	f.cleaned = true
	if f.tmpPath == "" {
		return nil
	}
	if err := os.Remove(f.tmpPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Cleaned reports whether the spooled file has been deleted
func (f *UploadedFile) Cleaned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleaned
}

// SpoolUpload copies one multipart part to a temporary file, hashing while
// copying, and returns its UploadedFile record
func SpoolUpload(fieldName string, header *multipart.FileHeader) (*UploadedFile, error) {
	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file %q: %w", header.Filename, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "crossbar-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file for %q: %w", header.Filename, err)
	}

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), src)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to spool uploaded file %q: %w", header.Filename, err)
	}

	return &UploadedFile{
		FieldName:   fieldName,
		Name:        header.Filename,
		Size:        size,
		MimeType:    header.Header.Get("Content-Type"),
		ContentHash: hex.EncodeToString(hash.Sum(nil)),
		tmpPath:     tmp.Name(),
	}, nil
}

// SpoolMultipartForm spools every file in a parsed multipart form, in field
// order, and returns the records. On failure the already-spooled files are
// cleaned up before returning.
func SpoolMultipartForm(form *multipart.Form) ([]*UploadedFile, error) {
	var files []*UploadedFile
	for field, headers := range form.File {
		for _, header := range headers {
			f, err := SpoolUpload(field, header)
			if err != nil {
				for _, prev := range files {
					prev.Cleanup()
				}
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}
