// Package httpapi exposes the engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
)

// Engine is the part of *invoiceflow.Engine the handlers use.
type Engine interface {
	Start(ctx context.Context, inv invoiceflow.Invoice) (*invoiceflow.RunResult, error)
	Resume(ctx context.Context, id string) (*invoiceflow.RunResult, error)
	Status(ctx context.Context, id string) (*invoiceflow.StatusView, error)
	Instance(ctx context.Context, id string) (*invoiceflow.Instance, error)
	List(ctx context.Context, opts invoiceflow.ListOptions) ([]*invoiceflow.InstanceSummary, error)
	Count(ctx context.Context, status invoiceflow.Status) (int, error)
	Checkpoints(ctx context.Context, id string) ([]*invoiceflow.Checkpoint, error)
	StageHistory(ctx context.Context, id string) ([]*invoiceflow.StageLogEntry, error)
	Delete(ctx context.Context, id string) error
	PendingReviews(ctx context.Context) ([]*invoiceflow.ReviewEntry, error)
	SubmitDecision(ctx context.Context, req invoiceflow.DecisionRequest) (*invoiceflow.DecisionResult, error)
}

var _ Engine = (*invoiceflow.Engine)(nil)

const defaultMaxBodyBytes = 1 << 20

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxBodyBytes limits request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// Server routes control requests to the engine.
type Server struct {
	engine       Engine
	logger       *slog.Logger
	maxBodyBytes int64
	mux          *http.ServeMux
}

// New builds the server and its routes.
func New(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:       engine,
		logger:       slog.New(slog.DiscardHandler),
		maxBodyBytes: defaultMaxBodyBytes,
		mux:          http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /workflow/run", s.handleRun)
	s.mux.HandleFunc("GET /workflow/status/{id}", s.handleStatus)
	s.mux.HandleFunc("GET /workflow/all", s.handleList)
	s.mux.HandleFunc("GET /workflow/{id}", s.handleInstance)
	s.mux.HandleFunc("GET /workflow/checkpoints/{id}", s.handleCheckpoints)
	s.mux.HandleFunc("GET /workflow/history/{id}", s.handleHistory)
	s.mux.HandleFunc("POST /workflow/resume/{id}", s.handleResume)
	s.mux.HandleFunc("DELETE /workflow/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /human-review/pending", s.handlePending)
	s.mux.HandleFunc("POST /human-review/decision", s.handleDecision)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("request handled",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RunResponse is returned by POST /workflow/run.
type RunResponse struct {
	InstanceID   string             `json:"instance_id"`
	Status       invoiceflow.Status `json:"status"`
	CheckpointID string             `json:"checkpoint_id,omitempty"`
	ReviewURL    string             `json:"review_url,omitempty"`
	Message      string             `json:"message"`
}

func runResponse(result *invoiceflow.RunResult) RunResponse {
	resp := RunResponse{
		InstanceID:   result.InstanceID,
		Status:       result.Status,
		CheckpointID: result.CheckpointID,
		ReviewURL:    result.ReviewURL,
	}
	switch result.Status {
	case invoiceflow.StatusPaused:
		resp.Message = "Workflow paused for human review"
	case invoiceflow.StatusCompleted, invoiceflow.StatusRequiresManualHandling:
		resp.Message = "Workflow completed successfully"
	case invoiceflow.StatusFailed:
		resp.Message = "Workflow failed"
		if result.Error != nil {
			resp.Message += ": " + result.Error.Error()
		}
	default:
		resp.Message = "Workflow in progress"
	}
	return resp
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var inv invoiceflow.Invoice
	if !s.decode(w, r, &inv) {
		return
	}
	result, err := s.engine.Start(r.Context(), inv)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(result))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(result))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.engine.Instance(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.engine.Status(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	checkpoints, err := s.engine.Checkpoints(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if checkpoints == nil {
		checkpoints = []*invoiceflow.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"checkpoints": checkpoints, "total": len(checkpoints)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.engine.StageHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if history == nil {
		history = []*invoiceflow.StageLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": history, "total": len(history)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	opts := invoiceflow.ListOptions{Status: invoiceflow.Status(r.URL.Query().Get("status"))}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, invoiceflow.NewValidationError(name, "must be a non-negative integer"))
			return
		}
		*dst = n
	}
	workflows, err := s.engine.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	total, err := s.engine.Count(r.Context(), opts.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": workflows, "total": total})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Workflow " + id + " deleted successfully"})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	items, err := s.engine.PendingReviews(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []*invoiceflow.ReviewEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req invoiceflow.DecisionRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.engine.SubmitDecision(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decode reads a JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	reader := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("payload exceeds limit"))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody("unable to read body"))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON: "+err.Error()))
		return false
	}
	return true
}

// StatusCode maps an engine error onto an HTTP status.
func StatusCode(err error) int {
	switch invoiceflow.ClassifyError(err) {
	case invoiceflow.ErrorKindValidation:
		return http.StatusBadRequest
	case invoiceflow.ErrorKindNotFound:
		return http.StatusNotFound
	case invoiceflow.ErrorKindConflict:
		return http.StatusConflict
	case invoiceflow.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
