// Package api exposes the translation server's HTTP surface: job submission
// and control, document download, model listing, and a websocket stream of
// job events.
//
// Responses are JSON; errors are `{"error": "..."}` objects with a matching
// HTTP status code. Routes are registered on a standard [http.ServeMux] using
// method-qualified patterns.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/tomeglot/internal/jobs"
	"github.com/MrWong99/tomeglot/pkg/provider/llm"
)

// maxUploadBytes caps the accepted document size. Books are small; anything
// beyond this is a mistake or abuse.
const maxUploadBytes = 64 << 20

// Submission is a translation request as received by the API. The app layer
// turns it into a job.
type Submission struct {
	// Filename is the original upload name; its extension drives file-type
	// detection.
	Filename string

	// Content is the raw document. JSON submissions carry it as a plain
	// string (UTF-8 text formats only); multipart uploads carry arbitrary
	// bytes.
	Content []byte

	// SourceLanguage and TargetLanguage override the configured defaults
	// when non-empty.
	SourceLanguage string
	TargetLanguage string

	// Model overrides the configured model when non-empty.
	Model string

	// Instructions are extra per-request translation instructions.
	Instructions string

	// PostProcessing overrides the configured default when non-nil.
	PostProcessing *bool
}

// SubmitFunc validates a submission and starts a job, returning the job id.
type SubmitFunc func(ctx context.Context, sub Submission) (string, error)

// ErrBadSubmission marks submission errors that should map to 400 rather
// than 500.
var ErrBadSubmission = errors.New("invalid submission")

// Server holds the HTTP handlers. All fields must be set except Logger,
// which defaults to slog.Default().
type Server struct {
	// Jobs is the job manager backing status, list and interrupt.
	Jobs *jobs.Manager

	// Submit starts a new translation job.
	Submit SubmitFunc

	// Provider answers /api/models.
	Provider llm.Provider

	// OutputDir is where finished documents live; downloads are served from
	// here by base name only.
	OutputDir string

	// Hub streams job events to websocket clients.
	Hub *Hub

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Register attaches all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("POST /api/jobs/{id}/interrupt", s.handleInterrupt)
	mux.HandleFunc("GET /api/jobs/{id}/download", s.handleDownload)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/events", s.handleEvents)
}

// handleTranslate accepts a document either as a multipart upload (field
// "file" plus form fields) or as a JSON [Submission] body.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	sub, err := parseSubmission(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if sub.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if len(sub.Content) == 0 {
		writeError(w, http.StatusBadRequest, "document content is empty")
		return
	}

	id, err := s.Submit(r.Context(), sub)
	if err != nil {
		if errors.Is(err, ErrBadSubmission) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger().Error("api: submit failed", "filename", sub.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to start translation")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// parseSubmission decodes either submission format based on Content-Type.
func parseSubmission(r *http.Request) (Submission, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if ct == "application/json" {
		var body struct {
			Filename       string `json:"filename"`
			Content        string `json:"content"`
			SourceLanguage string `json:"source_language"`
			TargetLanguage string `json:"target_language"`
			Model          string `json:"model"`
			Instructions   string `json:"instructions"`
			PostProcessing *bool  `json:"post_processing"`
		}
		dec := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes))
		if err := dec.Decode(&body); err != nil {
			return Submission{}, fmt.Errorf("invalid JSON body: %v", err)
		}
		return Submission{
			Filename:       body.Filename,
			Content:        []byte(body.Content),
			SourceLanguage: body.SourceLanguage,
			TargetLanguage: body.TargetLanguage,
			Model:          body.Model,
			Instructions:   body.Instructions,
			PostProcessing: body.PostProcessing,
		}, nil
	}

	if strings.HasPrefix(ct, "multipart/") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return Submission{}, fmt.Errorf("invalid multipart form: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return Submission{}, errors.New(`multipart form needs a "file" field`)
		}
		defer file.Close()

		content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return Submission{}, fmt.Errorf("read upload: %v", err)
		}

		sub := Submission{
			Filename:       header.Filename,
			Content:        content,
			SourceLanguage: r.FormValue("source_language"),
			TargetLanguage: r.FormValue("target_language"),
			Model:          r.FormValue("model"),
			Instructions:   r.FormValue("instructions"),
		}
		if v := r.FormValue("post_processing"); v != "" {
			pp := v == "true" || v == "1"
			sub.PostProcessing = &pp
		}
		return sub, nil
	}

	return Submission{}, fmt.Errorf("unsupported Content-Type %q", ct)
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Jobs.List())
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Jobs.Status(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.Jobs.Status(id); !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !s.Jobs.Interrupt(id) {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "interrupting"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Jobs.Status(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if snap.OutputName == "" {
		writeError(w, http.StatusConflict, "job has produced no output yet")
		return
	}

	// Serve by base name only; the output name is server-generated but the
	// path must never leave the output directory.
	name := filepath.Base(snap.OutputName)
	path := filepath.Join(s.OutputDir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "output file not found")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.Provider.ListModels(r.Context())
	if err != nil {
		s.logger().Warn("api: list models failed", "provider", s.Provider.Name(), "err", err)
		writeError(w, http.StatusBadGateway, "provider unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": s.Provider.Name(),
		"models":   models,
	})
}

// handleEvents upgrades to a websocket and streams job events as JSON text
// frames. An optional job_id query parameter narrows the stream to one job.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	jobFilter := r.URL.Query().Get("job_id")

	events, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if jobFilter != "" && e.JobID != jobFilter {
				continue
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
