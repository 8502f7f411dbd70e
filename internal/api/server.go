package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"labflow/internal/app"
	"labflow/internal/blob"
	"labflow/internal/config"
	"labflow/internal/models"
	"labflow/internal/pipeline"
	"labflow/internal/scheduler"
	"labflow/internal/status"
	"labflow/internal/util"
	"labflow/internal/workflows"
)

var (
	errNoCredentials = errors.New("no AI provider credentials configured")
	errMissingFields = errors.New("sessionId and fileIds are required")
	errTemporalOff   = errors.New("async processing is disabled")
)

// WorkflowClient is the part of the Temporal client the server uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options tclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (tclient.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID string, runID string, queryType string, args ...interface{}) (converter.EncodedValue, error)
}

type Server struct {
	cfg       config.Config
	files     app.FileStore
	blobs     blob.Store
	tracker   *status.Tracker
	processor *pipeline.Processor
	available func() bool
	temporal  WorkflowClient
	logger    *slog.Logger
}

// NewServer serves the pipeline in a. temporal may be nil, which disables the async routes.
func NewServer(a *app.App, temporal WorkflowClient) *Server {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       a.Config,
		files:     a.Files,
		blobs:     a.Blobs,
		tracker:   a.Tracker,
		processor: a.Processor,
		temporal:  temporal,
		logger:    logger,
	}
	s.available = func() bool { return a.Providers != nil && a.Providers.Availability().Any() }
	return s
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/process", s.handleProcess)
	mux.HandleFunc("/api/process/async", s.handleProcessAsync)
	mux.HandleFunc("/api/progress", s.handleProgress)
	mux.HandleFunc("/api/sessions/", s.handleSessionsScoped)
	mux.HandleFunc("/api/files/", s.handleFilesScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "providers": s.available()})
}

type processRequest struct {
	SessionID         string   `json:"sessionId"`
	FileIDs           []string `json:"fileIds"`
	PreferredProvider string   `json:"preferredProvider,omitempty"`
	MaxConcurrent     int      `json:"maxConcurrent,omitempty"`
	MaxDurationMs     int      `json:"maxDurationMs,omitempty"`
}

type fileError struct {
	FileID    string `json:"fileId"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
}

type processResponse struct {
	Success        bool                  `json:"success"`
	Results        []pipeline.FileResult `json:"results"`
	TotalProcessed int                   `json:"total_processed"`
	TotalRequested int                   `json:"total_requested"`
	TotalFailed    int                   `json:"total_failed"`
	Errors         []fileError           `json:"errors"`
	TimedOut       bool                  `json:"timedOut"`
	ProcessingTime int64                 `json:"processingTime"`
}

// decodeProcessRequest returns the HTTP status to use when the request is unusable.
func (s *Server) decodeProcessRequest(r *http.Request) (processRequest, int, error) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, http.StatusInternalServerError, fmt.Errorf("invalid json: %w", err)
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	ids := make([]string, 0, len(req.FileIDs))
	for _, id := range req.FileIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	req.FileIDs = ids
	if req.SessionID == "" || len(req.FileIDs) == 0 {
		return req, http.StatusBadRequest, errMissingFields
	}
	if !s.available() {
		return req, http.StatusInternalServerError, errNoCredentials
	}
	if req.PreferredProvider == "" {
		req.PreferredProvider = s.cfg.DefaultProvider
	}
	if req.MaxConcurrent <= 0 {
		req.MaxConcurrent = s.cfg.MaxConcurrent
	}
	if req.MaxDurationMs <= 0 {
		req.MaxDurationMs = s.cfg.MaxDurationMs
	}
	return req, 0, nil
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	start := time.Now()
	req, code, err := s.decodeProcessRequest(r)
	if err != nil {
		writeErr(w, code, err)
		return
	}
	log := s.logger.With("session_id", req.SessionID)
	log.Info("processing session", "files", len(req.FileIDs), "max_concurrent", req.MaxConcurrent, "preferred", req.PreferredProvider)

	s.processor.MarkPending(r.Context(), req.SessionID, req.FileIDs)
	out := scheduler.Run(r.Context(), req.FileIDs, scheduler.Options{
		MaxConcurrent: req.MaxConcurrent,
		MaxDuration:   time.Duration(req.MaxDurationMs) * time.Millisecond,
		Logger:        log,
	}, func(ctx context.Context, id string, b scheduler.Budget) pipeline.FileResult {
		return s.processor.ProcessFile(ctx, id, req.SessionID, req.PreferredProvider, b)
	})

	resp := processResponse{
		Success:        true,
		Results:        out.Results,
		TotalProcessed: len(out.Results),
		TotalRequested: len(req.FileIDs),
		Errors:         []fileError{},
		TimedOut:       out.TimedOut,
	}
	for _, res := range out.Results {
		if !res.Success {
			resp.TotalFailed++
			resp.Errors = append(resp.Errors, fileError{FileID: res.FileID, Error: res.Error, ErrorCode: res.ErrorCode})
		}
	}
	resp.ProcessingTime = time.Since(start).Milliseconds()
	log.Info("session processed", "processed", resp.TotalProcessed, "failed", resp.TotalFailed, "timed_out", resp.TimedOut, "duration_ms", resp.ProcessingTime)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProcessAsync(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if s.temporal == nil {
			writeErr(w, http.StatusServiceUnavailable, errTemporalOff)
			return
		}
		req, code, err := s.decodeProcessRequest(r)
		if err != nil {
			writeErr(w, code, err)
			return
		}
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:                                       workflows.WorkflowID(req.SessionID),
			TaskQueue:                                s.cfg.TemporalTaskQueue,
			WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
			WorkflowExecutionErrorWhenAlreadyStarted: true,
		}, workflows.SessionProcessWorkflow, workflows.SessionProcessInput{
			SessionID:         req.SessionID,
			FileIDs:           req.FileIDs,
			PreferredProvider: req.PreferredProvider,
			MaxConcurrent:     req.MaxConcurrent,
			MaxDurationMs:     int64(req.MaxDurationMs),
		})
		if err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
	case http.MethodGet:
		sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
		if sessionID == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("sessionId is required"))
			return
		}
		if s.temporal != nil {
			resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.WorkflowID(sessionID), "", workflows.QueryGetSessionProgress)
			if err == nil {
				var prog workflows.SessionProcessProgress
				if err := resp.Get(&prog); err != nil {
					writeErr(w, http.StatusInternalServerError, err)
					return
				}
				writeJSON(w, http.StatusOK, prog)
				return
			}
			s.logger.Debug("workflow query unavailable, using stored progress", "session_id", sessionID, "error", err)
		}
		s.writeProgress(w, r, sessionID)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("sessionId is required"))
		return
	}
	s.writeProgress(w, r, sessionID)
}

func (s *Server) writeProgress(w http.ResponseWriter, r *http.Request, sessionID string) {
	prog, err := s.tracker.Progress(r.Context(), sessionID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) handleSessionsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/"), "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] == "files" {
		switch r.Method {
		case http.MethodPost:
			s.handleUpload(w, r, parts[0])
		case http.MethodGet:
			files, err := s.files.ListSessionFiles(r.Context(), parts[0])
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"files": files})
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}
	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleFilesScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/files/"), "/"), "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] == "retry" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
		if sessionID == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("sessionId is required"))
			return
		}
		ok, err := s.tracker.Reset(r.Context(), parts[0], sessionID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeErr(w, http.StatusConflict, fmt.Errorf("file is not in a retryable failed state"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fileId": parts[0], "sessionId": sessionID, "status": models.StatusPending})
		return
	}
	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

type uploadResult struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Size     int64  `json:"size"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, sessionID string) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	userID := strings.TrimSpace(r.FormValue("user_id"))
	if userID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("user_id is required"))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		if single, ok := firstSingleFile(r.MultipartForm.File); ok {
			files = append(files, single)
		}
	}
	if len(files) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}

	out := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		res, err := s.storeUpload(r.Context(), sessionID, userID, fh)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, res)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sessionId": sessionID, "uploaded": out})
}

func (s *Server) storeUpload(ctx context.Context, sessionID, userID string, fh *multipart.FileHeader) (uploadResult, error) {
	src, err := fh.Open()
	if err != nil {
		return uploadResult{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return uploadResult{}, fmt.Errorf("read upload: %w", err)
	}

	fileType := fh.Header.Get("Content-Type")
	if fileType == "" || fileType == "application/octet-stream" {
		fileType = http.DetectContentType(data)
	}
	fileID := uuid.NewString()
	name := filepath.Base(fh.Filename)
	locator := strings.Join([]string{userID, sessionID, fileID, name}, "/")
	if err := s.blobs.Upload(ctx, locator, data, blob.UploadOptions{ContentType: fileType}); err != nil {
		return uploadResult{}, err
	}
	job := models.FileJob{
		FileID:         fileID,
		SessionID:      sessionID,
		UserID:         userID,
		FileName:       name,
		FileType:       fileType,
		StorageLocator: locator,
		SizeBytes:      int64(len(data)),
		ContentHash:    util.SHA256Hex(data),
	}
	if err := s.files.RegisterFile(ctx, job); err != nil {
		return uploadResult{}, err
	}
	s.tracker.Update(ctx, models.FileStatusRecord{FileID: fileID, SessionID: sessionID, FileName: name, FileType: fileType, Status: models.StatusPending})
	s.logger.Info("file uploaded", "file_id", fileID, "session_id", sessionID, "file_type", fileType, "size", len(data))
	return uploadResult{FileID: fileID, FileName: name, FileType: fileType, Size: job.SizeBytes}, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case errors.Is(err, errNoCredentials):
		return apiError{Code: "config_error", Message: "No AI provider is configured. Set OPENAI_API_KEY or ANTHROPIC_API_KEY."}
	case errors.Is(err, errTemporalOff):
		return apiError{Code: "LAB-API-5030", Message: "Async processing is disabled. Enable Temporal or use /api/process."}
	case status >= 500:
		switch {
		case strings.Contains(raw, "invalid json"):
			return apiError{Code: "LAB-API-5001", Message: "Malformed JSON request body."}
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{Code: "LAB-DB-5001", Message: "Database schema is not initialized. Run labctl schema and retry."}
		case strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{Code: "LAB-DB-5002", Message: "Database connection is unavailable. Check local services and retry."}
		default:
			return apiError{Code: "LAB-API-5000", Message: "Internal server error. Please retry or check service logs."}
		}
	case status == http.StatusNotFound:
		return apiError{Code: "LAB-API-4004", Message: "Requested resource was not found."}
	case status == http.StatusConflict:
		return apiError{Code: "LAB-API-4009", Message: messageOr(err, "Operation conflicts with current state.")}
	case status == http.StatusMethodNotAllowed:
		return apiError{Code: "LAB-API-4005", Message: "This endpoint does not support the requested method."}
	case status == http.StatusBadRequest:
		return apiError{Code: "LAB-API-4001", Message: messageOr(err, "Invalid request. Check inputs and retry.")}
	}
	return apiError{Code: "LAB-API-4000", Message: messageOr(err, "Request failed.")}
}

// messageOr exposes 4xx error text, which only ever carries request validation context.
func messageOr(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
