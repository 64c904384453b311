// Package server is the HTTP bridge: JSON in, the normalized entity list or
// a {"code","message"} error out.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"runtime"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"datadetector/internal/audit"
	"datadetector/internal/detect"
	"datadetector/internal/logging"
	"datadetector/internal/redact"
	"datadetector/internal/session"
	"datadetector/internal/stats"
)

const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL_ERROR"
	CodeNoSession      = "SESSION_NOT_FOUND"

	RequestIDHeader = "X-Request-ID"

	defaultMaxBatch       = 100
	defaultRequestTimeout = 30 * time.Second
)

// Detector is satisfied by *detect.Normalizer.
type Detector interface {
	Detect(ctx context.Context, text string, opts *detect.Options) ([]detect.Entity, error)
}

type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxRequestBytes int
	RequestTimeout  time.Duration
	MaxBatch        int
	// Backend names the detector in audit entries and /health.
	Backend string
	Audit   audit.Store
	// Sessions keeps redaction mappings for /v1/restore.
	Sessions *session.Store
	// Offsets applies when a request leaves options.offsets unset.
	Offsets detect.OffsetUnit
	Logger  logging.Logger
}

type Server struct {
	detector  Detector
	opts      Options
	http      *fasthttp.Server
	startedAt time.Time
}

func New(d Detector, opts Options) *Server {
	if opts.Audit == nil {
		opts.Audit = audit.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewStore(session.DefaultTTL)
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = defaultMaxBatch
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.Offsets == "" {
		opts.Offsets = detect.OffsetUTF16
	}
	s := &Server{detector: d, opts: opts, startedAt: time.Now().UTC()}
	s.http = &fasthttp.Server{
		Handler:               s.Handler,
		Name:                  "datadetector",
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		MaxRequestBodySize:    opts.MaxRequestBytes,
		TCPKeepalive:          true,
		TCPKeepalivePeriod:    3 * time.Minute,
		MaxIdleWorkerDuration: 10 * time.Second,
		NoDefaultServerHeader: true,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	s.opts.Logger.Info("server listening", "addr", s.opts.Addr, "backend", s.opts.Backend)
	return s.http.ListenAndServe(s.opts.Addr)
}

func (s *Server) Serve(ln net.Listener) error {
	return s.http.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.ShutdownWithContext(ctx)
}

// Handler routes a request. It is exported so tests and embedders can drive
// it without a listener.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	started := time.Now()
	requestID := string(ctx.Request.Header.Peek(RequestIDHeader))
	ctx.SetContentType("application/json")

	switch string(ctx.Path()) {
	case "/health":
		s.handleHealth(ctx)
	case "/api/stats":
		s.handleStats(ctx)
	case "/v1/detect":
		requestID = s.handleDetect(ctx, requestID)
	case "/v1/detect/batch":
		requestID = s.handleBatch(ctx, requestID)
	case "/v1/redact":
		requestID = s.handleRedact(ctx, requestID)
	case "/v1/restore":
		s.handleRestore(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "NOT_FOUND", "no route for "+string(ctx.Path()))
	}
	if requestID != "" {
		ctx.Response.Header.Set(RequestIDHeader, requestID)
	}

	s.opts.Logger.Info("request processed",
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"status", ctx.Response.StatusCode(),
		"request_id", requestID,
		"duration", time.Since(started).String(),
	)
}

type detectRequest struct {
	Text    *string         `json:"text"`
	Options *detect.Options `json:"options"`
}

type batchRequest struct {
	Texts   []string        `json:"texts"`
	Options *detect.Options `json:"options"`
}

type redactResponse struct {
	Text      string        `json:"text"`
	Items     []redact.Item `json:"items"`
	SessionID string        `json:"session_id"`
}

type restoreRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	// Done drops the session once restored.
	Done bool `json:"done"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"status":  "ok",
		"backend": s.opts.Backend,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return
	}
	entries, err := s.opts.Audit.Entries()
	if err != nil {
		s.opts.Logger.Error("read audit entries", "error", err)
		writeError(ctx, fasthttp.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, stats.CollectFromEntries(entries, stats.Options{
		Now:    time.Now().UTC(),
		Status: "running",
		Uptime: time.Since(s.startedAt),
		Addr:   s.opts.Addr,
	}))
}

func (s *Server) handleDetect(ctx *fasthttp.RequestCtx, requestID string) string {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return requestID
	}
	var req detectRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, CodeInvalidRequest, "invalid request: "+err.Error())
		return requestID
	}
	if req.Text == nil {
		writeError(ctx, fasthttp.StatusBadRequest, CodeInvalidRequest, "text is required")
		return requestID
	}

	c, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	entities, id, err := s.detect(c, audit.SourceHTTP, requestID, *req.Text, s.withOffsets(req.Options))
	if err != nil {
		writeDetectError(ctx, err)
		return id
	}
	writeJSON(ctx, fasthttp.StatusOK, entities)
	return id
}

func (s *Server) handleBatch(ctx *fasthttp.RequestCtx, requestID string) string {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return requestID
	}
	var req batchRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, CodeInvalidRequest, "invalid request: "+err.Error())
		return requestID
	}
	if len(req.Texts) > s.opts.MaxBatch {
		writeError(ctx, fasthttp.StatusBadRequest, CodeInvalidRequest, "too many texts in batch")
		return requestID
	}

	c, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	opts := s.withOffsets(req.Options)
	results := make([][]detect.Entity, len(req.Texts))
	g, gctx := errgroup.WithContext(c)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, text := range req.Texts {
		g.Go(func() error {
			entities, _, err := s.detect(gctx, audit.SourceBatch, "", text, opts)
			if err != nil {
				return err
			}
			results[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeDetectError(ctx, err)
		return requestID
	}
	writeJSON(ctx, fasthttp.StatusOK, results)
	return requestID
}

func (s *Server) handleRedact(ctx *fasthttp.RequestCtx, requestID string) string {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return requestID
	}
	var req detectRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, CodeInvalidRequest, "invalid request: "+err.Error())
		return requestID
	}
	if req.Text == nil {
		writeError(ctx, fasthttp.StatusBadRequest, CodeInvalidRequest, "text is required")
		return requestID
	}
	var types []detect.Type
	if req.Options != nil {
		types = req.Options.Types
	}
	c, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()
	rec := &recordingDetector{s: s, source: audit.SourceRedact, requestID: requestID}
	out, items, err := redact.New(rec).WithTypes(types).Redact(c, *req.Text)
	if err != nil {
		writeDetectError(ctx, err)
		return rec.requestID
	}
	if items == nil {
		items = []redact.Item{}
	}
	writeJSON(ctx, fasthttp.StatusOK, redactResponse{Text: out, Items: items, SessionID: s.opts.Sessions.Put(items)})
	return rec.requestID
}

// recordingDetector sends the redactor's lookups through s.detect so they
// reach the audit store.
type recordingDetector struct {
	s         *Server
	source    string
	requestID string
}

func (r *recordingDetector) Detect(ctx context.Context, text string, opts *detect.Options) ([]detect.Entity, error) {
	entities, id, err := r.s.detect(ctx, r.source, r.requestID, text, opts)
	r.requestID = id
	return entities, err
}

func (s *Server) handleRestore(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return
	}
	var req restoreRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, CodeInvalidRequest, "invalid request: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(ctx, fasthttp.StatusBadRequest, CodeInvalidRequest, "session_id is required")
		return
	}
	sess, ok := s.opts.Sessions.Get(req.SessionID)
	if !ok {
		writeError(ctx, fasthttp.StatusNotFound, CodeNoSession, "unknown or expired session")
		return
	}
	if req.Done {
		s.opts.Sessions.Delete(req.SessionID)
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"text": redact.Restore(req.Text, sess.Items)})
}

// detect runs one Detect call and records it. An empty requestID gets a
// fresh one.
func (s *Server) detect(ctx context.Context, source, requestID, text string, opts *detect.Options) ([]detect.Entity, string, error) {
	entry := audit.NewEntry(source, s.opts.Backend)
	if requestID != "" {
		entry.RequestID = requestID
	}
	entry.Describe(text, opts)
	started := time.Now()
	entities, err := s.detector.Detect(ctx, text, opts)
	entry.Record(entities, err, time.Since(started))
	if lerr := s.opts.Audit.Log(entry); lerr != nil {
		s.opts.Logger.Warn("audit log failed", "request_id", entry.RequestID, "error", lerr)
	}
	if err != nil {
		s.opts.Logger.Warn("detection failed", "request_id", entry.RequestID, "code", entry.ErrorCode, "error", err)
		return nil, entry.RequestID, err
	}
	if entities == nil {
		entities = []detect.Entity{}
	}
	return entities, entry.RequestID, nil
}

// withOffsets fills in the bridge's default offset unit.
func (s *Server) withOffsets(opts *detect.Options) *detect.Options {
	if opts != nil && opts.Offsets != "" {
		return opts
	}
	out := detect.Options{Offsets: s.opts.Offsets}
	if opts != nil {
		out.Types = opts.Types
	}
	return &out
}

// StatusFor maps a Detect error to the bridge status code.
func StatusFor(err error) (int, string) {
	var de *detect.Error
	if !errors.As(err, &de) {
		return fasthttp.StatusInternalServerError, CodeInternal
	}
	switch de.Kind {
	case detect.ModelUnavailable:
		return fasthttp.StatusServiceUnavailable, de.Code()
	default:
		return fasthttp.StatusInternalServerError, de.Code()
	}
}

func writeDetectError(ctx *fasthttp.RequestCtx, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	var de *detect.Error
	if errors.As(err, &de) {
		msg = de.Message()
	}
	writeError(ctx, status, code, msg)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, CodeInternal, "encode response: "+err.Error())
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	body, err := json.Marshal(errorResponse{Code: code, Message: message})
	if err != nil {
		body = []byte(`{"code":"INTERNAL_ERROR","message":"encode error"}`)
		status = fasthttp.StatusInternalServerError
	}
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
