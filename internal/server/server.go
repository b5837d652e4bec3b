package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/munifact/munifact/internal/artifact"
	"github.com/munifact/munifact/internal/common"
	"github.com/munifact/munifact/internal/entity"
	"github.com/munifact/munifact/internal/ingest"
	"github.com/munifact/munifact/internal/status"
	"github.com/munifact/munifact/internal/store"
)

// defaultOwnerID stands in until authentication is wired to the boundary.
const defaultOwnerID = 1

// Server is the HTTP boundary: upload in, polled status out, artifact down.
type Server struct {
	ingest         *ingest.Service
	status         *status.Service
	store          store.Store
	artifacts      artifact.Blobs
	maxUploadBytes int64
	logger         *slog.Logger
}

func New(ing *ingest.Service, st *status.Service, s store.Store, blobs artifact.Blobs, maxUploadBytes int64, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &Server{
		ingest:         ing,
		status:         st,
		store:          s,
		artifacts:      blobs,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/documents", s.handleListDocuments)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Get("/steps", s.handleListSteps)
			r.Get("/download", s.handleDownload)
			r.Delete("/", s.handleDeleteDocument)
		})
	})
	return r
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	doc, err := s.ingest.Ingest(r.Context(), defaultOwnerID, header.Filename, file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("error uploading file: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.status.ListDocuments(r.Context(), defaultOwnerID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching documents: %v", err))
		return
	}
	if docs == nil {
		docs = []*entity.Document{}
	}
	s.writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	doc, err := s.status.GetDocument(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching document: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	steps, err := s.status.ListSteps(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching steps: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, steps)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	doc, err := s.status.GetDocument(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) || (err == nil && doc.ArtifactRef == nil) {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching document: %v", err))
		return
	}

	blob, err := s.artifacts.Open(*doc.ArtifactRef)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "artifact not found on disk")
		return
	}
	defer blob.Close()

	base := strings.TrimSuffix(doc.Filename, ".pdf")
	ext := *doc.ArtifactRef
	if i := strings.LastIndexByte(ext, '.'); i >= 0 {
		ext = ext[i:]
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+base+ext+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, blob); err != nil {
		s.logger.Warn("artifact stream interrupted", "document_id", id, "error", err)
	}
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	doc, err := s.status.GetDocument(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error fetching document: %v", err))
		return
	}

	if doc.ArtifactRef != nil {
		if err := s.artifacts.Remove(*doc.ArtifactRef); err != nil {
			s.logger.Warn("artifact removal failed", "document_id", id, "error", err)
		}
	}
	if err := s.store.DeleteStepsByDocument(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error deleting steps: %v", err))
		return
	}
	if err := s.store.DeleteDocument(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("error deleting document: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid document id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"message": msg})
}
