package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/coffersTech/logql/internal/controller"
	"github.com/coffersTech/logql/internal/engine"
)

const (
	maxBodyBytes        = 1 << 20
	defaultHistoryLimit = 50
)

// Options configures an APIServer.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Gzip         bool
}

// APIServer exposes the parse engine over HTTP.
type APIServer struct {
	engine *engine.Engine
	tokens *controller.Store // nil disables authentication
	logger *zap.Logger
	opts   Options
	srv    *http.Server
	parser fastjson.ParserPool
}

// parseResponse is one parse outcome on the wire.
type parseResponse struct {
	engine.Result
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func NewAPIServer(e *engine.Engine, tokens *controller.Store, logger *zap.Logger, opts Options) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &APIServer{
		engine: e,
		tokens: tokens,
		logger: logger,
		opts:   opts,
	}
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler builds the routed, optionally compressed handler.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/api/parse", s.AuthMiddleware(http.HandlerFunc(s.handleParse)))
	mux.Handle("/api/history", s.AuthMiddleware(http.HandlerFunc(s.handleHistory)))
	mux.Handle("/api/stats", s.AuthMiddleware(http.HandlerFunc(s.handleStats)))

	if s.opts.Gzip {
		return gzhttp.GzipHandler(mux)
	}
	return mux
}

// Start runs the HTTP server until Shutdown. It returns nil after a
// graceful shutdown, including one that happened before Start.
func (s *APIServer) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// AuthMiddleware checks for a valid token in the Authorization header or the
// token query parameter. It passes everything through when no store is set.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	if s.tokens == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logql"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}

		if _, ok := s.tokens.Verify(token); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logql"`)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// handleParse serves GET /api/parse?q=... and POST /api/parse with either
// {"query": "..."} or a batch array of such objects or plain strings.
func (s *APIServer) handleParse(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query().Get("q")
		s.respondSingle(w, q)
	case http.MethodPost:
		s.handleParseBody(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *APIServer) handleParseBody(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusRequestEntityTooLarge)
		return
	}

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if v.Type() != fastjson.TypeArray {
		q, err := queryFromValue(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.respondSingle(w, q)
		return
	}

	arr, _ := v.Array()
	queries := make([]string, 0, len(arr))
	for i, val := range arr {
		q, err := queryFromValue(val)
		if err != nil {
			http.Error(w, fmt.Sprintf("item %d: %v", i, err), http.StatusBadRequest)
			return
		}
		queries = append(queries, q)
	}

	results := s.engine.ExplainBatch(queries)
	s.engine.SyncHistory()

	out := make([]parseResponse, len(results))
	for i, res := range results {
		out[i] = toResponse(res)
	}
	writeJSON(w, s.logger, http.StatusOK, out)
}

func (s *APIServer) respondSingle(w http.ResponseWriter, query string) {
	res, err := s.engine.Explain(query)
	s.engine.SyncHistory()
	if err != nil {
		writeJSON(w, s.logger, http.StatusBadRequest, toResponse(res))
		return
	}
	writeJSON(w, s.logger, http.StatusOK, toResponse(res))
}

// queryFromValue accepts a JSON string or an object with a string "query".
func queryFromValue(v *fastjson.Value) (string, error) {
	switch v.Type() {
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return string(b), nil
	case fastjson.TypeObject:
		q := v.Get("query")
		if q == nil || q.Type() != fastjson.TypeString {
			return "", fmt.Errorf(`"query" string is required`)
		}
		b, _ := q.StringBytes()
		return string(b), nil
	default:
		return "", fmt.Errorf("expected object or string, got %s", v.Type())
	}
}

func toResponse(res engine.Result) parseResponse {
	out := parseResponse{Result: res}
	if res.Err != nil {
		out.Error = res.Err.Error()
		out.Kind = engine.ErrorKind(res.Err)
	}
	return out
}

// handleHistory serves GET /api/history?limit=n, newest first.
func (s *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultHistoryLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	writeJSON(w, s.logger, http.StatusOK, s.engine.History(limit))
}

// handleStats serves GET /api/stats.
func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, s.engine.Stats())
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("JSON encode error", zap.Error(err))
	}
}
