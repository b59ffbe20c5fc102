// Package server implements the mock practice-management API: a token
// endpoint, bearer-protected contact/expense/invoice/time-entry CRUD, and the
// accounting-sync report sink. Every collection is a list of JSON documents
// loaded and rewritten wholesale through the document store.
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/practicebridge/ledgersync/internal/server/store"
)

// tokenTTL is the lifetime of issued bearer tokens, reported to clients as
// expires_in seconds.
const tokenTTL = 1 * time.Hour

// Config holds the server's fixed credentials and backing store.
type Config struct {
	ClientID     string
	ClientSecret string
	Store        store.Store
	Logger       *slog.Logger
}

// Server is the mock API.
type Server struct {
	store        store.Store
	logger       *slog.Logger
	clientID     string
	clientSecret string

	mu     sync.Mutex
	tokens map[string]time.Time
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:        cfg.Store,
		logger:       logger,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokens:       make(map[string]time.Time),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/", s.handleIndex)
	router.POST("/connect/token", s.handleToken)

	core := router.Group("/core", s.requireToken())
	{
		core.GET("/contacts", s.handleListContacts)
		core.POST("/contacts", s.handleCreateContact)
		core.PATCH("/contacts/:personId", s.handleUpdateContact)

		core.GET("/expense", s.handleListExpenses)
		core.POST("/expense", s.handleCreateExpense)
		core.PATCH("/expense", s.handleUpdateExpense)
		core.DELETE("/expense", s.handleDeleteExpense)

		core.GET("/invoice", s.handleListInvoices)
		core.POST("/invoice", s.handleCreateInvoice)

		core.GET("/time", s.handleListTimeEntries)
		core.POST("/time", s.handleCreateTimeEntry)
	}

	router.PUT("/fv-app/v2/AccountingSync", s.requireToken(), s.handleAccountingSync)

	return router
}

// requestLogger logs one line per request through the server's slog logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(started),
		)
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Mock practice-management API",
		"endpoints": gin.H{
			"/core/contacts":            "Manage contacts (GET, POST, PATCH)",
			"/core/expense":             "Manage expenses (GET, POST, PATCH, DELETE)",
			"/core/invoice":             "Manage invoices (GET, POST)",
			"/core/time":                "Manage time entries (GET, POST)",
			"/connect/token":            "Token exchange (POST)",
			"/fv-app/v2/AccountingSync": "Report sync outcomes (PUT)",
		},
	})
}

// tokenRequest accepts the credential pair as JSON or form-encoded, the
// latter so that standard client_credentials OAuth2 clients can drive the
// exchange.
type tokenRequest struct {
	ClientID     string `json:"client_id" form:"client_id"`
	ClientSecret string `json:"client_secret" form:"client_secret"`
}

func (s *Server) handleToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed token request"})
		return
	}

	if req.ClientID != s.clientID || req.ClientSecret != s.clientSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = time.Now().Add(tokenTTL)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(tokenTTL.Seconds()),
	})
}

// requireToken rejects requests without a valid, unexpired bearer token.
func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		s.mu.Lock()
		expiry, known := s.tokens[token]
		s.mu.Unlock()

		if !known || time.Now().After(expiry) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Next()
	}
}
