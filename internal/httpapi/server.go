// Package httpapi is the contest HTTP service: answer validation, stage
// availability, administrator stage control, winners and solve records.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/contest/internal/admin"
	"github.com/roach88/contest/internal/answer"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/gate"
	"github.com/roach88/contest/internal/leaderboard"
	"github.com/roach88/contest/internal/metrics"
	"github.com/roach88/contest/internal/store"
)

// Route paths.
const (
	PathValidate     = answer.ValidatePath
	PathAdminControl = "/functions/v1/admin_stage_control"
	PathAdminBulk    = "/functions/v1/admin_stage_control/bulk"
	PathWinners      = leaderboard.WinnersPath
	PathAvailability = gate.AvailabilityPath
	PathSolves       = "/api/solves"
	PathMetrics      = "/metrics"
	PathHealth       = "/healthz"
)

// AdminHeader carries the acting administrator's email on admin reads.
const AdminHeader = "X-Admin-User"

// Store is the persistence the service reads and writes.
type Store interface {
	Winners(ctx context.Context) ([]store.Winner, error)
	StageAvailability(ctx context.Context) (map[config.StageID]bool, error)
	SolvedStages(ctx context.Context, userID string) (config.StageSet, error)
	WriteSolve(ctx context.Context, solve store.Solve) (bool, error)
	Ping(ctx context.Context) error
}

// Deps are the service's collaborators.
type Deps struct {
	Config    *config.Contest
	Validator answer.Validator
	Store     Store
	Admin     *admin.Console
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// APIKey, when set, is required as a bearer token on /functions and
	// solve writes.
	APIKey string
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Handlers holds the route handlers.
type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &Handlers{deps: deps, logger: deps.Logger.With("component", "httpapi")}

	router := gin.New()
	router.Use(gin.Recovery(), h.observe)

	fn := router.Group("/functions/v1", h.requireKey)
	fn.POST("/validate-answer", h.HandleValidate)
	fn.GET("/admin_stage_control", h.HandleAdminOverview)
	fn.POST("/admin_stage_control", h.HandleAdminWrite)
	fn.PUT("/admin_stage_control/bulk", h.HandleAdminBulk)

	api := router.Group("/api")
	api.GET("/stage_winners", h.HandleWinners)
	api.GET("/stage_control", h.HandleAvailability)
	api.GET("/solves/:user_id", h.HandleSolvedStages)
	api.POST("/solves", h.requireKey, h.HandleWriteSolve)

	router.GET(PathMetrics, gin.WrapH(deps.Metrics.Handler()))
	router.GET(PathHealth, h.HandleHealth)
	return router
}

// observe logs and counts every request.
func (h *Handlers) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	h.deps.Metrics.HTTPRequest(c.Request.Method, route, status)
	h.logger.Debug("request",
		"method", c.Request.Method,
		"route", route,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds())
}

func (h *Handlers) requireKey(c *gin.Context) {
	if h.deps.APIKey == "" {
		c.Next()
		return
	}
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token != h.deps.APIKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error: "missing or invalid API key",
			Code:  "UNAUTHORIZED",
		})
		return
	}
	c.Next()
}

// Server runs the router until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "httpapi"),
	}
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errc <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("stopped")
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}
