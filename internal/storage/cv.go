// Package storage keeps researcher CV files in a Cloud Storage bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
)

// MaxCVSize is the largest accepted upload.
const MaxCVSize = 5 << 20

const pdfContentType = "application/pdf"

// Upload errors.
var (
	ErrNotPDF      = errors.New("cv must be a PDF document")
	ErrTooLarge    = errors.New("cv exceeds 5 MiB")
	ErrInvalidUser = errors.New("invalid user id for cv path")
)

type bucketHandle interface {
	Object(name string) objectHandle
}

type objectHandle interface {
	NewWriter(ctx context.Context, contentType string) io.WriteCloser
	Delete(ctx context.Context) error
}

type gcsBucket struct{ bh *storage.BucketHandle }

func (b gcsBucket) Object(name string) objectHandle { return gcsObject{oh: b.bh.Object(name)} }

type gcsObject struct{ oh *storage.ObjectHandle }

func (o gcsObject) NewWriter(ctx context.Context, contentType string) io.WriteCloser {
	w := o.oh.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, max-age=0"
	return w
}

func (o gcsObject) Delete(ctx context.Context) error { return o.oh.Delete(ctx) }

// CVStore writes one CV object per user.
type CVStore struct {
	bucket bucketHandle
}

// NewCVStore wraps a bucket handle, usually from the Firebase app's default bucket.
func NewCVStore(bh *storage.BucketHandle) *CVStore {
	return &CVStore{bucket: gcsBucket{bh: bh}}
}

// ObjectPath is the object name holding userID's CV.
func ObjectPath(userID string) string {
	return "cvs/" + userID + "/cv.pdf"
}

// Put stores r as userID's CV and returns the object path. The declared content
// type and the sniffed bytes must both say PDF.
func (s *CVStore) Put(ctx context.Context, userID string, r io.Reader, contentType string) (string, error) {
	if userID == "" || strings.ContainsAny(userID, "/\\") || userID == "." || userID == ".." {
		return "", ErrInvalidUser
	}
	if ct := strings.TrimSpace(strings.Split(contentType, ";")[0]); ct != "" && !strings.EqualFold(ct, pdfContentType) {
		return "", ErrNotPDF
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read cv: %w", err)
	}
	head = head[:n]
	if !isPDF(head) {
		return "", ErrNotPDF
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	path := ObjectPath(userID)
	w := s.bucket.Object(path).NewWriter(writeCtx, pdfContentType)

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(w, io.LimitReader(body, MaxCVSize+1))
	if err == nil && written > MaxCVSize {
		err = ErrTooLarge
	}
	if err != nil {
		// Cancelling before Close abandons the upload.
		cancel()
		_ = w.Close()
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("upload cv: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize cv upload: %w", err)
	}
	return path, nil
}

// Delete removes a stored CV. A missing object is not an error.
func (s *CVStore) Delete(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := s.bucket.Object(path).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete cv: %w", err)
	}
	return nil
}

func isPDF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("%PDF-")) && http.DetectContentType(head) == pdfContentType
}
