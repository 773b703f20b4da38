// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/models"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// decodeJSONBody decodes one JSON object, rejecting unknown fields and
// trailing data.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// Proxies handles GET /api/v1/proxies.
func (h *Handler) Proxies(w http.ResponseWriter, r *http.Request) {
	proxies := h.cfg.Proxies
	if proxies == nil {
		proxies = []models.Proxy{}
	}
	NewResponseWriter(w, r).List(proxies, len(proxies))
}

// ListExports handles GET /api/v1/exports.
func (h *Handler) ListExports(w http.ResponseWriter, r *http.Request) {
	jobs := h.exports.List()
	if jobs == nil {
		jobs = []models.ExportJob{}
	}
	NewResponseWriter(w, r).List(jobs, len(jobs))
}

// CreateExport handles POST /api/v1/exports.
func (h *Handler) CreateExport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var opts models.ExportOptions
	if err := decodeJSONBody(w, r, &opts); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	job, err := h.exports.Create(r.Context(), opts)
	if err != nil {
		writeError(rw, err)
		return
	}
	w.Header().Set("Location", "/api/v1/exports/"+job.ID)
	rw.Created(job)
}

// GetExport handles GET /api/v1/exports/{id}.
func (h *Handler) GetExport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	job, err := h.exports.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(rw, err)
		return
	}
	rw.Success(job)
}

// DeleteExport handles DELETE /api/v1/exports/{id}.
func (h *Handler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if err := h.exports.Delete(id); err != nil {
		writeError(rw, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("job_id", sanitizeLogValue(id)).Msg("Export job deleted")
	rw.NoContent()
}

// DownloadExport handles GET /api/v1/exports/{id}/download.
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	dl, err := h.exports.Download(chi.URLParam(r, "id"))
	if err != nil {
		writeError(rw, err)
		return
	}
	if dl.Path == "" {
		if dl.URL == "" {
			rw.NotFound("export artifact is no longer available")
			return
		}
		http.Redirect(w, r, dl.URL, http.StatusFound)
		return
	}

	f, err := os.Open(dl.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			rw.NotFound("export artifact is no longer available")
			return
		}
		rw.InternalError(err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		rw.InternalError(err)
		return
	}

	name := dl.FileName
	if name == "" {
		name = filepath.Base(dl.Path)
	}
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
