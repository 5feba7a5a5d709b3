package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"magazine/internal/apperr"
	"magazine/internal/assets"
)

var (
	errBadJSON   = apperr.Validation("invalid_body", "", "Request body is not valid JSON!")
	errBadForm   = apperr.Validation("invalid_form", "", "Request body is not a valid multipart form!")
	errBadUpload = apperr.Validation("invalid_upload", "documents", "An uploaded file could not be read!")
	errBadDate   = apperr.Validation("invalid_date", "dob", "Dates must use the YYYY-MM-DD format!")
	errBadGender = apperr.Validation("invalid_gender", "gender", "Gender must be true or false!")
)

const errInternalMsg = "Internal server error"

// respondError writes err as {"error": code, "message": text}. Storage,
// upstream and unclassified failures are logged and answered generically.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.Abort()
		return
	}
	status := apperr.Status(err)

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		slog.Error("request failed", "method", c.Request.Method, "route", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal_error", "message": errInternalMsg})
		return
	}
	if !apperr.Public(err) {
		slog.Error("request failed", "method", c.Request.Method, "route", c.FullPath(), "code", ae.Code, "error", err)
	}

	body := gin.H{"error": ae.Code, "message": ae.Message}
	if ae.Field != "" {
		body["field"] = ae.Field
	}
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, errBadJSON.Wrap(err))
		return false
	}
	return true
}

// parseForm bounds the body to the largest legitimate upload batch and parses
// it as multipart.
func (h *handler) parseForm(c *gin.Context, maxFiles int) (*multipart.Form, bool) {
	limit := int64(maxFiles)*h.MaxUploadBytes + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, errBadForm.Wrap(err))
		return nil, false
	}
	return form, true
}

// formUploads opens the files posted under field. The returned func closes
// them.
func formUploads(form *multipart.Form, field string) ([]assets.Upload, func(), error) {
	headers := form.File[field]
	uploads := make([]assets.Upload, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, errBadUpload.Wrap(err)
		}
		opened = append(opened, f)
		uploads = append(uploads, assets.Upload{Name: fh.Filename, Size: fh.Size, Reader: f})
	}
	return uploads, closeAll, nil
}

func formValue(form *multipart.Form, key string) (string, bool) {
	v, ok := form.Value[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// attachment delays the download headers until the first byte of the archive
// is written, so a failure before that is still answered as JSON.
type attachment struct {
	c       *gin.Context
	name    string
	started bool
}

func (a *attachment) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.c.Header("Content-Type", "application/zip")
		a.c.Header("Content-Disposition", `attachment; filename="`+a.name+`"`)
		a.c.Status(http.StatusOK)
	}
	return a.c.Writer.Write(p)
}

func (h *handler) export(c *gin.Context, eventID string, selector []string) {
	w := &attachment{c: c, name: "event-" + eventID + ".zip"}
	n, err := h.Exporter.Export(c.Request.Context(), eventID, w, selector)
	if err != nil {
		if !w.started {
			respondError(c, err)
			return
		}
		slog.Warn("archive stream interrupted", "event_id", eventID, "error", err)
		c.Abort()
		return
	}
	slog.Info("archive exported", "event_id", eventID, "files", n)
}
