package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rahul/orbit/internal/agent"
	"github.com/rahul/orbit/internal/executor"
	"github.com/rahul/orbit/internal/observability"
	"github.com/rahul/orbit/internal/steps"
	"github.com/rahul/orbit/internal/store"
	"github.com/rahul/orbit/internal/tools"
)

const Version = "0.1.0"

// SourceHTTP tags runs submitted through the HTTP API.
const SourceHTTP = "http"

type ServerOptions struct {
	Addr           string
	AllowedOrigins []string
	Agent          *agent.Agent
	Hub            *steps.Hub
	Registry       *tools.Registry
	Audit          *store.AuditStore
	Metrics        *observability.Metrics
	Logger         *observability.Logger
}

// Server is the local API edge: command submission, run inspection, the
// audit trail and the live event stream.
type Server struct {
	agent    *agent.Agent
	hub      *steps.Hub
	registry *tools.Registry
	audit    *store.AuditStore
	metrics  *observability.Metrics
	logger   *observability.Logger
	origins  []string

	upgrader websocket.Upgrader
	router   *gin.Engine
	http     *http.Server
	started  time.Time
}

func NewServer(opts ServerOptions) *Server {
	s := &Server{
		agent:    opts.Agent,
		hub:      opts.Hub,
		registry: opts.Registry,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		origins:  opts.AllowedOrigins,
		started:  time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if s.logger != nil {
		r.Use(observability.RequestLogger(s.logger))
	}
	if s.metrics != nil {
		r.Use(observability.RequestMetricsMiddleware(s.metrics))
	}
	if len(s.origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  s.origins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type"},
			CustomSchemas: customSchemas(s.origins),
			MaxAge:        12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.router = r
	s.registerRoutes()

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	r := s.router

	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	r.POST("/run", s.handleRun)
	r.POST("/plan", s.handlePlan)
	r.GET("/runs", s.handleListRuns)
	r.GET("/runs/:id", s.handleGetRun)
	r.GET("/tools", s.handleTools)
	r.GET("/ws", s.handleStream)

	if s.audit != nil {
		r.GET("/audit/logs", s.handleAuditLogs)
		r.GET("/audit/summary/:run_id", s.handleAuditSummary)
	}
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	st := observability.GetStatus()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"version":     Version,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"mode":        st.Mode,
		"active_runs": s.agent.Executor.Active(),
		"observers":   s.hub.Len(),
	})
}

func (s *Server) handleRun(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON with a non-empty \"command\""})
		return
	}

	runID, err := s.agent.Submit(c.Request.Context(), SourceHTTP, req.Command)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

func (s *Server) handlePlan(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON with a non-empty \"command\""})
		return
	}

	plan, err := s.agent.Plan(req.Command)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": plan.Command, "steps": plan.Summary()})
}

func (s *Server) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.agent.Executor.List()})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.agent.Executor.Get(c.Param("id"))
	if errors.Is(err, executor.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": s.registry.Describe()})
}

func (s *Server) handleAuditLogs(c *gin.Context) {
	f := store.Filter{
		RunID:     c.Query("run_id"),
		EventType: store.EventType(c.Query("event_type")),
		ToolName:  c.Query("tool_name"),
		Status:    c.Query("status"),
		Limit:     store.DefaultQueryLimit,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		f.Limit = n
	}

	events, err := s.audit.Query(f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) handleAuditSummary(c *gin.Context) {
	runID := c.Param("run_id")
	sum, ok, err := s.audit.Summary(runID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no audit trail for run " + runID})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// writeError maps a rejected command onto a status code. Validation
// failures never create a run, so the body carries the reason and kind only.
func writeError(c *gin.Context, err error) {
	kind := agent.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case agent.KindUnparseable, agent.KindToolNotFound:
		status = http.StatusUnprocessableEntity
	case agent.KindPolicyDenied:
		status = http.StatusForbidden
	case agent.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind})
}

// checkOrigin admits non-browser clients (no Origin header) and the
// configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// customSchemas lists the non-http origin schemes (tauri://, app://) cors
// must be told about.
func customSchemas(origins []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, o := range origins {
		i := strings.Index(o, "://")
		if i <= 0 {
			continue
		}
		scheme := o[:i+3]
		if scheme == "http://" || scheme == "https://" || seen[scheme] {
			continue
		}
		seen[scheme] = true
		out = append(out, scheme)
	}
	return out
}
