// Package assets manages uploaded files on local disk.
package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"magazine/internal/apperr"
)

// Directory categories under the upload root.
const (
	CategoryContributions   = "contributions"
	CategoryProfilePictures = "profile_pictures"
)

// sniffLen is how much of an upload is inspected for its content type.
const sniffLen = 3072

var (
	ErrFileType = apperr.Validation("unsupported_file_type", "documents",
		"File upload only supports the following filetypes: jpeg, jpg, png, gif, pdf, doc, docx")
	ErrFileTooLarge = apperr.Validation("file_too_large", "documents", "File exceeds the maximum upload size")
	ErrNoFile       = apperr.Validation("file_required", "documents", "At least one file is required")
)

// Policy constrains what an upload may be.
type Policy struct {
	MaxBytes int64
	// Types maps an allowed lower-case extension to the content types its
	// bytes may sniff as.
	Types map[string][]string
}

var imageTypes = map[string][]string{
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
}

// ImagePolicy accepts pictures only.
func ImagePolicy(maxBytes int64) Policy {
	return Policy{MaxBytes: maxBytes, Types: imageTypes}
}

// DocumentPolicy accepts pictures and office/PDF documents.
func DocumentPolicy(maxBytes int64) Policy {
	types := map[string][]string{
		".pdf":  {"application/pdf"},
		".doc":  {"application/msword", "application/x-ole-storage"},
		".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	}
	for ext, t := range imageTypes {
		types[ext] = t
	}
	return Policy{MaxBytes: maxBytes, Types: types}
}

// Upload is one incoming file.
type Upload struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// Store keeps uploads under a base directory.
type Store struct {
	base string
	now  func() time.Time
}

// New returns a store rooted at base. The directory is created lazily.
func New(base string) *Store {
	return &Store{base: base, now: time.Now}
}

// Base returns the root directory.
func (s *Store) Base() string { return s.base }

// Path returns the absolute location of relDir/name.
func (s *Store) Path(relDir, name string) string {
	return filepath.Join(s.base, relDir, name)
}

// ContributionDir returns the directory for one contributor's files of an event.
func ContributionDir(eventID, contributorID string) string {
	return filepath.Join(CategoryContributions, eventID, contributorID)
}

// Validate checks extension and declared size without touching disk.
func Validate(up Upload, p Policy) error {
	ext := strings.ToLower(filepath.Ext(up.Name))
	if _, ok := p.Types[ext]; !ok {
		return ErrFileType
	}
	if p.MaxBytes > 0 && up.Size > p.MaxBytes {
		return ErrFileTooLarge
	}
	return nil
}

// Save writes up into relDir and returns the generated file name. The
// directory is created on demand. A partially written file is removed when
// any check fails.
func (s *Store) Save(ctx context.Context, relDir string, up Upload, p Policy) (string, error) {
	if err := Validate(up, p); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(up.Name))

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(up.Reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", apperr.Storage(fmt.Errorf("read upload: %w", err))
	}
	head = head[:n]
	if !contentMatches(head, p.Types[ext]) {
		return "", ErrFileType
	}

	dir := filepath.Join(s.base, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Storage(fmt.Errorf("create upload dir: %w", err))
	}

	name := s.fileName(ext)
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", apperr.Storage(fmt.Errorf("create upload file: %w", err))
	}

	src := io.MultiReader(bytes.NewReader(head), up.Reader)
	limit := p.MaxBytes
	if limit <= 0 {
		limit = 1<<63 - 1
	}
	written, copyErr := io.Copy(f, io.LimitReader(src, limit))
	if copyErr == nil && written == limit {
		// Probe for one more byte to detect uploads that lied about their size.
		var one [1]byte
		if k, _ := src.Read(one[:]); k > 0 {
			copyErr = ErrFileTooLarge
		}
	}
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if errors.Is(copyErr, ErrFileTooLarge) {
			return "", ErrFileTooLarge
		}
		return "", apperr.Storage(fmt.Errorf("write upload: %w", errors.Join(copyErr, closeErr)))
	}
	return name, nil
}

// fileName derives a collision-resistant name from a nanosecond timestamp
// and a random component, keeping the extension.
func (s *Store) fileName(ext string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d_%s%s", s.now().UnixNano(), random, ext)
}

func contentMatches(head []byte, allowed []string) bool {
	for m := mimetype.Detect(head); m != nil; m = m.Parent() {
		for _, a := range allowed {
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}

// Remove deletes names from relDir. Missing files are ignored; the record
// that referenced them is authoritative.
func (s *Store) Remove(relDir string, names []string) {
	for _, name := range names {
		if name == "" || name != filepath.Base(name) {
			continue
		}
		err := os.Remove(filepath.Join(s.base, relDir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("remove upload failed", "dir", relDir, "file", name, "error", err)
		}
	}
}

// RemoveDirIfEmpty drops relDir when nothing is left in it.
func (s *Store) RemoveDirIfEmpty(relDir string) {
	dir := filepath.Join(s.base, relDir)
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	_ = os.Remove(dir)
}
