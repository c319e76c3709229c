package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hrassist/server/internal/agent/graph"
	"github.com/hrassist/server/internal/agent/model"
	errx "github.com/hrassist/server/internal/core/error"
	logx "github.com/hrassist/server/pkg/logger"
)

// maxRequestBodySize bounds a /query payload (64KB).
const maxRequestBodySize = 64 << 10

// Turns is the part of graph.Runner the HTTP adapter needs.
type Turns interface {
	SubmitTurn(ctx context.Context, req graph.TurnRequest) (*graph.TurnResult, error)
	Reset(ctx context.Context, threadID string) error
}

// QueryRequest is the /query payload.
type QueryRequest struct {
	Query        string `json:"query"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	JobTitle     string `json:"job_title"`
	DocumentName string `json:"document_name"`
	// ThreadID is optional and defaults to the employee id.
	ThreadID string `json:"thread_id,omitempty"`
}

// QueryResponse carries the final assistant message in data.
type QueryResponse struct {
	Data       string  `json:"data"`
	ThreadID   string  `json:"thread_id"`
	DocumentID string  `json:"document_id,omitempty"`
	CostUSD    float64 `json:"cost_usd"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the assistant over HTTP.
type Handler struct {
	turns Turns
}

func NewHandler(turns Turns) *Handler {
	return &Handler{turns: turns}
}

// Router returns the chi router with middleware and routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/healthz"))

	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the assistant endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.HandleQuery)
	r.Delete("/threads/{threadID}", h.HandleReset)
}

func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	logx.Info().
		Str("request_id", chiMiddleware.GetReqID(r.Context())).
		Str("employee_id", req.EmployeeID).
		Str("job_title", req.JobTitle).
		Str("document_name", req.DocumentName).
		Int("query_len", len(req.Query)).
		Msg("Received /query request")

	res, err := h.turns.SubmitTurn(r.Context(), graph.TurnRequest{
		ThreadID:     strings.TrimSpace(req.ThreadID),
		Query:        req.Query,
		DocumentName: req.DocumentName,
		Identity: model.Identity{
			EmployeeID:   req.EmployeeID,
			EmployeeName: req.EmployeeName,
			JobTitle:     req.JobTitle,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	logx.Info().
		Str("thread_id", res.ThreadID).
		Int("response_len", len(res.Answer)).
		Msg("Request completed")
	writeJSON(w, http.StatusOK, QueryResponse{
		Data:       res.Answer,
		ThreadID:   res.ThreadID,
		DocumentID: res.DocumentID,
		CostUSD:    res.CostUSD,
	})
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if err := h.turns.Reset(r.Context(), threadID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errx.HTTPStatus(err)
	ev := logx.Warn()
	if status >= http.StatusInternalServerError {
		ev = logx.Error()
	}
	ev.Err(err).
		Str("request_id", chiMiddleware.GetReqID(r.Context())).
		Int("status", status).
		Msg("Request failed")
	writeJSON(w, status, errorResponse{Error: errx.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("Failed to write response")
	}
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logx.Debug().
				Str("request_id", chiMiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// Serve runs the HTTP server until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a turn may chain several model calls
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logx.Info().Msg("Server stopped successfully")
	return nil
}
