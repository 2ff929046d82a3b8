// Package api exposes the screening pipeline over HTTP: submit a job with
// multipart uploads, then poll it by id.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/recruitai/screening-agent/internal/agent"
	"github.com/recruitai/screening-agent/internal/ingestion"
	"github.com/recruitai/screening-agent/internal/jobstore"
	"github.com/recruitai/screening-agent/internal/models"
)

// maxUploadBytes bounds one submission, job description included.
const maxUploadBytes = 64 << 20

// MailSource pulls resume attachments from a mailbox. Optional; submissions
// referencing it fail cleanly when it is not configured.
type MailSource interface {
	FetchAttachments(ctx context.Context, subject string) ([]models.SourcedFile, error)
}

// Server handles the HTTP surface.
type Server struct {
	pipeline *agent.Pipeline
	store    jobstore.Store
	mail     MailSource
	logger   *zap.Logger
}

// NewServer wires the handler set. mail may be nil.
func NewServer(pipeline *agent.Pipeline, store jobstore.Store, mail MailSource, logger *zap.Logger) *Server {
	return &Server{pipeline: pipeline, store: store, mail: mail, logger: logger}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/{jobID}", s.handleStatus)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmit accepts a multipart form:
//
//	jd_file or jd_text  the job description (file wins when both are sent)
//	resumes             one or more resume files
//	top_n               optional shortlist size
//	gmail_subject       optional mailbox query for additional resumes
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	jdText, errMsg := jobDescription(r)
	if errMsg != "" {
		respondError(w, http.StatusBadRequest, errMsg)
		return
	}

	var files []models.SourcedFile
	if uploads := r.MultipartForm.File["resumes"]; len(uploads) > 0 {
		var err error
		files, err = ingestion.ReadUploads(uploads)
		if err != nil {
			respondError(w, http.StatusBadRequest, "reading uploads: "+err.Error())
			return
		}
	}

	if subject := r.FormValue("gmail_subject"); subject != "" {
		if s.mail == nil {
			respondError(w, http.StatusBadRequest, "mailbox sourcing is not configured")
			return
		}
		fetched, err := s.mail.FetchAttachments(r.Context(), subject)
		if err != nil {
			respondError(w, http.StatusBadGateway, "fetching mailbox attachments: "+err.Error())
			return
		}
		files = append(files, fetched...)
	}

	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no resumes provided")
		return
	}

	topN := 0
	if v := r.FormValue("top_n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "top_n must be a positive integer")
			return
		}
		topN = n
	}

	jobID, err := s.pipeline.Submit(r.Context(), agent.SubmitRequest{
		JDText: jdText,
		Files:  files,
		TopN:   topN,
	})
	if err != nil {
		s.logger.Error("job submission failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func jobDescription(r *http.Request) (string, string) {
	if headers := r.MultipartForm.File["jd_file"]; len(headers) > 0 {
		f, err := headers[0].Open()
		if err != nil {
			return "", "could not open jd_file"
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", "could not read jd_file"
		}
		return string(data), ""
	}
	if text := r.FormValue("jd_text"); text != "" {
		return text, ""
	}
	return "", "provide jd_file or jd_text"
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, http.StatusNotFound, "unknown job id")
			return
		}
		s.logger.Error("job lookup failed", zap.String("job", jobID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode errors after WriteHeader cannot be reported to the client.
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
