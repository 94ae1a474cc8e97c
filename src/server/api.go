package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"stock-charter/src/analysis"
	"stock-charter/src/interfaces"
	"stock-charter/src/logger"
	"stock-charter/src/models"
	"stock-charter/src/providers"
	"stock-charter/src/quota"
	"stock-charter/src/tracking"
	"stock-charter/src/utils"

	"github.com/gin-gonic/gin"
)

// defaultFibLookback is the swing window used when the client does not
// pass one.
const defaultFibLookback = 90

// -----------------------------------------------------------------------------
// APIServer exposes the cache and update subsystem to the chart UI over
// REST, and pushes "stock updated" events over a websocket hub.
// -----------------------------------------------------------------------------

type APIServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Store   interfaces.IStockStore
	Quota   *quota.Tracker
	Tracker *tracking.Tracker
	Runner  interfaces.IUpdateRunner
	Markets *utils.Markets

	engine *gin.Engine

	// WebSocket hub state
	clients    map[*Client]struct{}
	broadcast  chan *models.MUpdateEvent
	register   chan *Client
	unregister chan *Client
}

// -----------------------------------------------------------------------------

func NewAPIServer(
	cfg *models.MConfig,
	store interfaces.IStockStore,
	quotaTracker *quota.Tracker,
	tracker *tracking.Tracker,
	runner interfaces.IUpdateRunner,
	markets *utils.Markets,
	log *logger.Logger,
) *APIServer {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:  cfg,
		Logger:  log,
		Store:   store,
		Quota:   quotaTracker,
		Tracker: tracker,
		Runner:  runner,
		Markets: markets,
		engine:  gin.Default(),
		clients: make(map[*Client]struct{}),
		// Buffered so a slow client cannot stall the scheduler's notify path
		broadcast:  make(chan *models.MUpdateEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	s.engine.Use(corsMiddleware())
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/bars/:symbol", s.getBars)
	s.engine.GET("/api/fib/:symbol", s.getFib)
	s.engine.GET("/api/fundamentals/:symbol", s.getFundamentals)
	s.engine.GET("/api/financials/:symbol", s.getFinancials)
	s.engine.GET("/api/quota", s.getQuota)
	s.engine.GET("/api/status/:symbol", s.getStatus)
	s.engine.POST("/api/symbols", s.postSymbol)
	s.engine.POST("/api/update", s.postUpdate)

	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.runHub()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------
// Route handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": len(s.clients),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getBars(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	bars, err := s.Store.GetPriceBars(symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(bars) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no cached bars for %s", symbol)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "bars": bars})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getFib(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	lookback := defaultFibLookback
	if raw := c.Query("lookback"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lookback must be a positive integer"})
			return
		}
		lookback = n
	}

	bars, err := s.Store.GetPriceBars(symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	retr, err := analysis.Retracements(symbol, bars, lookback)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, retr)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getFundamentals(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	snapshot, err := s.Store.GetFundamentals(symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no fundamentals for %s", symbol)})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getFinancials(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	periods, err := s.Store.GetIncomeStatements(symbol, 8)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(periods) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no income statements for %s", symbol)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "periods": periods})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getQuota(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.Quota.Status()})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getStatus(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	rec, err := s.Tracker.Status(symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%s is not tracked", symbol)})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// -----------------------------------------------------------------------------

type registerRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Priority int    `json:"priority"`
}

func (s *APIServer) postSymbol(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	priority := req.Priority
	if priority == 0 {
		priority = models.PriorityLowest
	}

	if err := s.Tracker.RegisterSymbol(symbol, priority); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.Markets != nil {
		s.Markets.TrackSymbol(symbol)
	}

	// Seed the cache without making the caller wait on upstream.
	s.Runner.Enqueue(symbol, models.UpdateTypePrice, priority)

	c.JSON(http.StatusCreated, gin.H{"symbol": symbol, "priority": models.ClampPriority(priority)})
}

// -----------------------------------------------------------------------------

type updateRequest struct {
	Symbol     string `json:"symbol" binding:"required"`
	UpdateType string `json:"update_type"`
}

func (s *APIServer) postUpdate(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	updateType := req.UpdateType
	if updateType == "" {
		updateType = models.UpdateTypePrice
	}
	if !models.IsUpdateType(updateType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown update type %q", updateType)})
		return
	}

	if err := s.Runner.UpdateNow(symbol, updateType); err != nil {
		var exhausted *providers.ExhaustedError
		if errors.As(err, &exhausted) {
			c.JSON(http.StatusBadGateway, gin.H{"error": exhausted.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "update_type": updateType, "status": "updated"})
}
