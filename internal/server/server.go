package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/liao/bookchat/internal/rag"
)

const (
	statusMessage  = "Coding Chatbot API is running!"
	genericFailure = "An error occurred during chat processing."
	maxBodyBytes   = 1 << 20
)

// Answerer 问答流水线
type Answerer interface {
	Answer(ctx context.Context, query string) (*rag.ChatExchange, error)
}

type Options struct {
	Addr         string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type chatRequest struct {
	Query *string `json:"query"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Server 对外的 HTTP 接口，处理器之间不共享可变状态
type Server struct {
	pipeline Answerer
	server   *http.Server
}

func New(pipeline Answerer, opts Options) *Server {
	s := &Server{pipeline: pipeline}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("POST /chat", s.handleChat)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      withCORS(opts.CORSOrigins, mux),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler 返回完整的处理链，测试直接用
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run 阻塞直到 ctx 取消或监听失败。ctx 取消后等待进行中的请求结束再返回。
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	slog.Info("server starting", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": statusMessage})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		slog.Info("reject chat request", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "request body must be a JSON object with a string field \"query\""})
		return
	}
	if req.Query == nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "field \"query\" is required"})
		return
	}

	exchange, err := s.pipeline.Answer(r.Context(), *req.Query)
	if err != nil {
		if errors.Is(err, rag.ErrInvalidRequest) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "field \"query\" must not be empty"})
			return
		}
		slog.Error("chat failed", "request_id", requestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: genericFailure})
		return
	}

	slog.Info("chat answered", "request_id", requestID, "context", len(exchange.Context))
	writeJSON(w, http.StatusOK, chatResponse{Response: exchange.Answer})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
