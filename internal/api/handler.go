package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/webclinic017/GDA-v2/internal/balance"
	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/monitor"
	"github.com/webclinic017/GDA-v2/internal/state"
	"github.com/webclinic017/GDA-v2/pkg/cache"
	"github.com/webclinic017/GDA-v2/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server exposes the bot's state over HTTP. Nothing it serves can trade.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	Queries *db.Queries
	State   *state.Manager
	Balance *balance.Manager
	Quotes  *cache.QuoteCache
	Metrics *monitor.Metrics
	Auth    AuthConfig
	Meta    SystemMeta

	http *http.Server
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Strategy  string   `json:"strategy"`
	Exchange  string   `json:"exchange"`
	DryRun    bool     `json:"dry_run"`
	Symbols   []string `json:"symbols"`
	TPMode    string   `json:"take_profit_mode"`
	Version   string   `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// Options configure NewServer. Queries, Quotes and Metrics are optional.
type Options struct {
	Bus     *events.Bus
	DB      *db.Database
	State   *state.Manager
	Balance *balance.Manager
	Quotes  *cache.QuoteCache
	Metrics *monitor.Metrics
	Auth    AuthConfig
	Limits  RateLimit
	Meta    SystemMeta
}

func NewServer(opts Options) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                   // Panic recovery (first)
	r.Use(RequestIDMiddleware())            // Request ID tracking
	r.Use(RequestLogger(opts.Metrics))      // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(opts.Limits)) // Rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware()) // CORS (last before routes)

	s := &Server{
		Router:  r,
		Bus:     opts.Bus,
		State:   opts.State,
		Balance: opts.Balance,
		Quotes:  opts.Quotes,
		Metrics: opts.Metrics,
		Auth:    opts.Auth,
		Meta:    opts.Meta,
	}
	if opts.DB != nil {
		s.Queries = opts.DB.Queries()
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if s.Metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	api := s.Router.Group("/api")
	{
		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.Auth.JWTSecret))
		{
			protected.GET("/status", s.getStatus)
			protected.GET("/ledger", s.getLedger)
			protected.GET("/ledger/:symbol", s.getLedgerRecord)
			protected.GET("/quotes", s.getQuotes)
			protected.GET("/cycles", s.getCycles)
			protected.GET("/cycles/:id", s.getCycle)
			protected.GET("/orders", s.getOrders)
			protected.GET("/trades", s.getTrades)
			protected.GET("/reconciliations", s.getReconciliations)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.Router, ReadHeaderTimeout: 10 * time.Second}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
