// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the answer pipeline over HTTP.
//
//	POST /v1/answer   {"question": "..."}  -> types.Answer
//	POST /v1/analyze  {"question": "..."}  -> types.QueryAnalysis
//	GET  /healthz
//	GET  /metrics
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/evidence-engine/internal/logging"
	"github.com/pdiddy/evidence-engine/internal/metrics"
	"github.com/pdiddy/evidence-engine/internal/synthesis"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// maxQuestionChars rejects pasted documents posing as questions.
const maxQuestionChars = 2000

// Answerer runs questions through the pipeline.
type Answerer interface {
	Ask(ctx context.Context, text string) (*types.Answer, error)
	Analyze(text string) types.QueryAnalysis
}

// QuestionRequest is the body of /v1/answer and /v1/analyze.
type QuestionRequest struct {
	Question string `json:"question"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server wraps an echo instance bound to one Answerer.
type Server struct {
	e   *echo.Echo
	ans Answerer
	cfg types.ServerConfig
	log *slog.Logger
}

// New builds the routes. When g is nil /metrics is not mounted.
func New(ans Answerer, g prometheus.Gatherer, cfg types.ServerConfig) *Server {
	def := types.DefaultConfig().Server
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	s := &Server{e: echo.New(), ans: ans, cfg: cfg, log: logging.New("server")}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.HTTPErrorHandler = s.handleError
	s.e.Use(middleware.Recover())
	s.e.Use(middleware.RequestID())
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			)
			return nil
		},
	}))

	s.e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if g != nil {
		s.e.GET("/metrics", echo.WrapHandler(metrics.Handler(g)))
	}
	v1 := s.e.Group("/v1")
	v1.POST("/answer", s.answer)
	v1.POST("/analyze", s.analyze)
	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler { return s.e }

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr)
		errCh <- s.e.Start(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving %s: %w", s.cfg.Addr, err)
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := s.e.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) answer(c echo.Context) error {
	q, err := question(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.cfg.RequestTimeout)
	defer cancel()

	ans, err := s.ans.Ask(ctx, q)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, ans)
	case errors.Is(err, synthesis.ErrGeneration):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error()).SetInternal(err)
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "answer timed out").SetInternal(err)
	default:
		return err
	}
}

func (s *Server) analyze(c echo.Context) error {
	q, err := question(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.ans.Analyze(q))
}

func question(c echo.Context) (string, error) {
	var req QuestionRequest
	if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	q := strings.TrimSpace(req.Question)
	switch {
	case q == "":
		return "", echo.NewHTTPError(http.StatusBadRequest, "question is required")
	case len(q) > maxQuestionChars:
		return "", echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("question exceeds %d characters", maxQuestionChars))
	}
	return q, nil
}

// handleError renders every error as ErrorResponse JSON.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}

	req := c.Request()
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", req.Method, "path", req.URL.Path, "status", code, "error", err)
	} else {
		s.log.Debug("request rejected", "method", req.Method, "path", req.URL.Path, "status", code, "error", err)
	}
	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Error: msg})
}
