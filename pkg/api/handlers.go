package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/julienschmidt/httprouter"

	"github.com/entrhq/transcripts/pkg/blob"
	"github.com/entrhq/transcripts/pkg/logstore"
)

// multipartOverhead is the allowance for form boundaries and headers on top of the file limit.
const multipartOverhead = 1 << 20

type uploadResponse struct {
	Success   bool   `json:"success"`
	FileName  string `json:"filename"`
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id"`
}

func (s *Server) getConfig(_ context.Context, w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.cfg.Info())
}

func (s *Server) listProjects(ctx context.Context, w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		s.internalError(w, "listing projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) listSessions(ctx context.Context, w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	sessions, err := s.store.ListSessions(ctx, p.ByName("project"))
	if err != nil {
		s.internalError(w, "listing sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) parseSession(ctx context.Context, w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	messages, err := s.store.ParseSession(ctx, p.ByName("project"), p.ByName("session"))
	if err != nil {
		s.internalError(w, "parsing session", err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) upload(ctx context.Context, w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not available in this deployment")
		return
	}
	maxSize := int64(s.cfg.Uploads.MaxSize)
	if maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.tooLarge(w, maxSize)
			return
		}
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read file: %v", err))
		return
	}

	if err := logstore.CheckUpload(data, maxSize); err != nil {
		var invalid *logstore.ValidationError
		switch {
		case errors.Is(err, logstore.ErrFileTooLarge):
			s.tooLarge(w, maxSize)
		case errors.As(err, &invalid):
			writeError(w, http.StatusBadRequest, "Invalid JSONL file: "+invalid.Reason)
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	name, err := s.uploads.SaveUploadedFile(ctx, data, header.Filename)
	if err != nil {
		s.uploadError(w, err, maxSize)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:   true,
		FileName:  name,
		ProjectID: logstore.UploadedProjectID,
		SessionID: logstore.SessionID(name),
	})
}

func (s *Server) listUploads(ctx context.Context, w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if s.uploads == nil {
		writeJSON(w, http.StatusOK, []logstore.UploadedFile{})
		return
	}
	files, err := s.uploads.ListUploadedFiles(ctx)
	if err != nil {
		s.internalError(w, "listing uploads", err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) readUpload(ctx context.Context, w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	if s.uploads == nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	data, err := s.uploads.ReadUploadedFile(ctx, p.ByName("filename"))
	if err != nil {
		s.uploadError(w, err, 0)
		return
	}
	w.Header().Set("Content-Type", logstore.UploadContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) uploadExists(ctx context.Context, w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	if s.uploads == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	exists, err := s.uploads.UploadedFileExists(ctx, p.ByName("filename"))
	switch {
	case err != nil && (errors.Is(err, logstore.ErrStorageNotConfigured) || errors.Is(err, logstore.ErrNoVisitor)):
		w.WriteHeader(http.StatusNotFound)
	case err != nil:
		s.logger.Errorf("checking upload: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
	case !exists:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) deleteUpload(ctx context.Context, w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	if s.uploads == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not available in this deployment")
		return
	}
	deleted, err := s.uploads.DeleteUploadedFile(ctx, p.ByName("filename"))
	if err != nil {
		s.uploadError(w, err, 0)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"deleted": false, "error": "file not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// uploadError maps upload-side failures to statuses.
func (s *Server) uploadError(w http.ResponseWriter, err error, maxSize int64) {
	switch {
	case errors.Is(err, logstore.ErrStorageNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "storage not configured")
	case errors.Is(err, logstore.ErrNoVisitor):
		writeError(w, http.StatusBadRequest, "no visitor session")
	case errors.Is(err, logstore.ErrFileTooLarge):
		s.tooLarge(w, maxSize)
	case errors.Is(err, logstore.ErrUploadNotFound):
		writeError(w, http.StatusNotFound, "file not found")
	case errors.Is(err, blob.ErrPolicyViolation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, "upload operation", err)
	}
}

func (s *Server) tooLarge(w http.ResponseWriter, maxSize int64) {
	writeError(w, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("File too large. Maximum size is %s", humanize.Bytes(uint64(maxSize))))
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Errorf("%s: %v", what, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
