package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"refile-go/internal/refile"
	"refile-go/internal/staging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize+multipartOverhead)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Expected multipart/form-data")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, `Missing "file" field`)
			return
		}
		if err != nil {
			s.writeBodyError(w, err)
			return
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		s.storeUpload(w, r, part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		return
	}
}

func (s *Server) storeUpload(w http.ResponseWriter, r *http.Request, filename, mime string, body io.Reader) {
	staged, err := s.scratch.Stage(body, s.cfg.MaxUploadSize)
	if err != nil {
		s.writeBodyError(w, err)
		return
	}
	defer staged.Cleanup()

	resp, err := s.svc.Upload(r.Context(), &refile.UploadRequest{
		TempPath: staged.Path,
		Filename: filename,
		Mime:     mime,
	})
	if err != nil {
		status := uploadErrorStatus(err)
		if status >= 500 {
			s.log.Error("upload failed", "requestID", middleware.GetReqID(r.Context()), "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.ObserveUpload(resp.Size, resp.Deduplicated)
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeBodyError maps failures while reading the request body.
func (s *Server) writeBodyError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, staging.ErrTooLarge), errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
	case errors.Is(err, staging.ErrFull):
		writeError(w, http.StatusServiceUnavailable, "Upload capacity exhausted, try again later")
	default:
		s.log.Error("reading upload body failed", "error", err)
		writeError(w, http.StatusBadRequest, "Malformed upload body")
	}
}

func uploadErrorStatus(err error) int {
	switch {
	case errors.Is(err, refile.ErrMimeNotAllowed):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, refile.ErrShortIDCollision):
		return http.StatusConflict
	case errors.Is(err, refile.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleServe streams a stored object. The filename segment is cosmetic.
func (s *Server) handleServe(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Resolve(chi.URLParam(r, "id"))
	if err != nil {
		s.log.Error("resolving object failed", "id", chi.URLParam(r, "id"), "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	f, err := os.Open(res.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Not found")
			return
		}
		s.log.Error("opening object failed", "path", res.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	defer f.Close()

	ct := res.Meta.Mime
	if ct == "" {
		ct = refile.DefaultContentType
	}
	h := w.Header()
	h.Set("Content-Type", ct)
	h.Set("Content-Length", strconv.FormatInt(res.Meta.Size, 10))
	h.Set("Content-Disposition", `inline; filename="`+refile.EscapeComponent(res.Meta.Filename)+`"`)
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		s.log.Warn("streaming object interrupted", "id", chi.URLParam(r, "id"), "error", err)
	}
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Resolve(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, res.Meta)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
		"version": s.cfg.Version,
	})
}

func (s *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !s.isReady.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
