// Package archive bundles the uploaded files of an event into one zip.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"magazine/internal/apperr"
	"magazine/internal/metrics"
)

// ErrNothingToExport is returned when no file matches the export.
var ErrNothingToExport = apperr.NotFound("no_files", "no files to export")

// Exporter zips <root>/<eventID>/<contributorID>/<file> trees.
type Exporter struct {
	root    string
	tempDir string
}

// NewExporter reads contribution directories under root and stages
// archives in tempDir.
func NewExporter(root, tempDir string) *Exporter {
	return &Exporter{root: root, tempDir: tempDir}
}

type entry struct {
	name string // <contributorID>/<file>
	path string
}

// Export writes a zip of the event's files to w and returns how many files
// it holds. A non-nil selector keeps only the listed <contributorID>/<file>
// paths. The archive is staged in a temporary file that is removed before
// Export returns.
func (e *Exporter) Export(ctx context.Context, eventID string, w io.Writer, selector []string) (n int, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = apperr.KindOf(err).String()
		}
		metrics.ArchiveExports.WithLabelValues(result).Inc()
	}()

	if _, err := uuid.Parse(eventID); err != nil {
		return 0, apperr.ErrInvalidID
	}
	entries, err := e.collect(eventID, selector)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, ErrNothingToExport
	}

	tmp, err := os.CreateTemp(e.tempDir, "event-"+eventID+"-*.zip")
	if err != nil {
		return 0, apperr.Storage(fmt.Errorf("create archive: %w", err))
	}
	defer func() {
		_ = tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			slog.Warn("could not remove archive", "path", tmp.Name(), "error", rmErr)
		}
	}()

	if err := writeZip(ctx, tmp, entries); err != nil {
		return 0, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, apperr.Storage(fmt.Errorf("rewind archive: %w", err))
	}
	if _, err := io.Copy(w, &ctxReader{ctx: ctx, r: tmp}); err != nil {
		return 0, fmt.Errorf("stream archive: %w", err)
	}
	return len(entries), nil
}

func (e *Exporter) collect(eventID string, selector []string) ([]entry, error) {
	var keep map[string]bool
	if selector != nil {
		keep = make(map[string]bool, len(selector))
		for _, s := range selector {
			keep[s] = true
		}
	}

	eventDir := filepath.Join(e.root, eventID)
	contributors, err := os.ReadDir(eventDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("read event dir: %w", err))
	}

	var out []entry
	for _, c := range contributors {
		if !c.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(eventDir, c.Name()))
		if err != nil {
			return nil, apperr.Storage(fmt.Errorf("read contributor dir: %w", err))
		}
		for _, f := range files {
			if !f.Type().IsRegular() {
				continue
			}
			name := path.Join(c.Name(), f.Name())
			if keep != nil && !keep[name] {
				continue
			}
			out = append(out, entry{name: name, path: filepath.Join(eventDir, c.Name(), f.Name())})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func writeZip(ctx context.Context, dst io.Writer, entries []entry) error {
	zw := zip.NewWriter(dst)
	for _, en := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFile(ctx, zw, en); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return apperr.Storage(fmt.Errorf("finish archive: %w", err))
	}
	return nil
}

func addFile(ctx context.Context, zw *zip.Writer, en entry) error {
	f, err := os.Open(en.path)
	if err != nil {
		return apperr.Storage(fmt.Errorf("open %s: %w", en.name, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperr.Storage(fmt.Errorf("stat %s: %w", en.name, err))
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return apperr.Storage(err)
	}
	hdr.Name = en.name
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return apperr.Storage(fmt.Errorf("add %s: %w", en.name, err))
	}
	if _, err := io.Copy(dst, &ctxReader{ctx: ctx, r: f}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperr.Storage(fmt.Errorf("compress %s: %w", en.name, err))
	}
	return nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
