// Package mcpserver exposes the translator to MCP-speaking agents.
//
// Three tools are served over stdio using the official MCP Go SDK:
//
//   - translate_text: synchronous translation of a short text snippet
//   - submit_job: start an asynchronous document translation job
//   - job_status: poll a job's progress and result
//
// The server is transport-agnostic internally; [Server.Run] binds it to
// stdio, tests connect over in-memory pipes.
package mcpserver

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/tomeglot/internal/jobs"
)

// Backend is the slice of the application the MCP tools need. Implemented by
// the app layer; narrowed to an interface so the server is testable in
// isolation.
type Backend interface {
	// TranslateText translates a snippet synchronously. Empty language
	// arguments fall back to the configured defaults.
	TranslateText(ctx context.Context, text, sourceLang, targetLang, instructions string) (string, error)

	// SubmitJob starts an asynchronous document translation and returns the
	// job id.
	SubmitJob(ctx context.Context, filename, content, sourceLang, targetLang string) (string, error)

	// JobStatus returns the current snapshot of a job.
	JobStatus(id string) (jobs.Snapshot, bool)
}

// Server wires the translation backend into an MCP server.
type Server struct {
	backend Backend
	mcp     *mcpsdk.Server
}

// TranslateTextInput is the translate_text tool input.
type TranslateTextInput struct {
	Text           string `json:"text" jsonschema:"the text to translate"`
	SourceLanguage string `json:"source_language,omitempty" jsonschema:"source language name; empty uses the server default"`
	TargetLanguage string `json:"target_language,omitempty" jsonschema:"target language name; empty uses the server default"`
	Instructions   string `json:"instructions,omitempty" jsonschema:"extra translation instructions"`
}

// TranslateTextOutput is the translate_text tool output.
type TranslateTextOutput struct {
	Translation string `json:"translation"`
}

// SubmitJobInput is the submit_job tool input.
type SubmitJobInput struct {
	Filename       string `json:"filename" jsonschema:"document name including extension (.txt, .epub, .srt)"`
	Content        string `json:"content" jsonschema:"the document content"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// SubmitJobOutput is the submit_job tool output.
type SubmitJobOutput struct {
	JobID string `json:"job_id"`
}

// JobStatusInput is the job_status tool input.
type JobStatusInput struct {
	JobID string `json:"job_id" jsonschema:"id returned by submit_job"`
}

// JobStatusOutput is the job_status tool output.
type JobStatusOutput struct {
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
	OutputName string  `json:"output_name,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// New builds an MCP server serving the three translation tools backed by b.
func New(b Backend) *Server {
	s := &Server{
		backend: b,
		mcp: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    "tomeglot",
			Version: "1.0.0",
		}, nil),
	}

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "translate_text",
		Description: "Translate a text snippet and return the translation immediately.",
	}, s.translateText)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "submit_job",
		Description: "Start an asynchronous document translation job (.txt, .epub or .srt) and return its job id.",
	}, s.submitJob)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "job_status",
		Description: "Return status, progress and output name of a translation job.",
	}, s.jobStatus)

	return s
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.mcp.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcpserver: run: %w", err)
	}
	return nil
}

// Connect binds the server to an arbitrary transport. Used by tests.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

func (s *Server) translateText(ctx context.Context, _ *mcpsdk.CallToolRequest, in TranslateTextInput) (*mcpsdk.CallToolResult, TranslateTextOutput, error) {
	if in.Text == "" {
		return nil, TranslateTextOutput{}, fmt.Errorf("text is required")
	}
	translation, err := s.backend.TranslateText(ctx, in.Text, in.SourceLanguage, in.TargetLanguage, in.Instructions)
	if err != nil {
		return nil, TranslateTextOutput{}, err
	}
	return nil, TranslateTextOutput{Translation: translation}, nil
}

func (s *Server) submitJob(ctx context.Context, _ *mcpsdk.CallToolRequest, in SubmitJobInput) (*mcpsdk.CallToolResult, SubmitJobOutput, error) {
	if in.Filename == "" || in.Content == "" {
		return nil, SubmitJobOutput{}, fmt.Errorf("filename and content are required")
	}
	id, err := s.backend.SubmitJob(ctx, in.Filename, in.Content, in.SourceLanguage, in.TargetLanguage)
	if err != nil {
		return nil, SubmitJobOutput{}, err
	}
	return nil, SubmitJobOutput{JobID: id}, nil
}

func (s *Server) jobStatus(_ context.Context, _ *mcpsdk.CallToolRequest, in JobStatusInput) (*mcpsdk.CallToolResult, JobStatusOutput, error) {
	snap, ok := s.backend.JobStatus(in.JobID)
	if !ok {
		return nil, JobStatusOutput{}, fmt.Errorf("job %q not found", in.JobID)
	}
	return nil, JobStatusOutput{
		Status:     string(snap.Status),
		Progress:   snap.Progress,
		OutputName: snap.OutputName,
		Error:      snap.Error,
	}, nil
}
