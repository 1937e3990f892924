// Package api wires the ingest controller and consumer endpoint onto an
// HTTP surface with gin: middleware first, then route groups, then
// handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ticketmesh/ticketmesh/internal/audit"
	"github.com/ticketmesh/ticketmesh/internal/authmw"
	"github.com/ticketmesh/ticketmesh/internal/consumer"
	"github.com/ticketmesh/ticketmesh/internal/ingest"
	"github.com/ticketmesh/ticketmesh/internal/notify"
	"github.com/ticketmesh/ticketmesh/internal/ticket"
	"github.com/ticketmesh/ticketmesh/pkg/messaging"

	natsgo "github.com/nats-io/nats.go"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP surface over the ingest controller and consumer
// endpoint.
type Server struct {
	router   *gin.Engine
	ingest   *ingest.Controller
	consumer *consumer.Endpoint
	audit    *audit.Store // optional
	auth     *authmw.Middleware

	wsMu      sync.RWMutex
	wsClients map[*websocket.Conn]chan []byte

	nats *messaging.Client // optional, set by SubscribeReady
}

// Config configures a Server.
type Config struct {
	Ingest   *ingest.Controller
	Consumer *consumer.Endpoint
	Audit    *audit.Store
	Auth     *authmw.Middleware
}

// New builds a Server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		router:    gin.Default(),
		ingest:    cfg.Ingest,
		consumer:  cfg.Consumer,
		audit:     cfg.Audit,
		auth:      cfg.Auth,
		wsClients: make(map[*websocket.Conn]chan []byte),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/tickets", s.submitTicket)
		v1.GET("/tickets/next", s.popNext)
		v1.GET("/tickets/:id/status", s.getStatus)
		v1.GET("/queue", s.auth.RequireAuth(), s.listQueue)
		v1.GET("/tickets/:id/history", s.auth.RequireAuth(), s.getHistory)
	}

	s.router.GET("/ws/tickets", s.streamReady)
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// performs a graceful shutdown with a bounded grace period, matching the
// teacher's cmd/gateway signal-driven shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if s.nats != nil {
		body["nats_connected"] = s.nats.IsConnected()
		body["nats_reconnects"] = s.nats.Reconnects()
	}
	c.JSON(http.StatusOK, body)
}

type submitRequest struct {
	TicketID    string `json:"ticket_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Description string `json:"description"`
}

func (s *Server) submitTicket(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := s.ingest.Submit(c.Request.Context(), ticket.Ticket{
		TicketID:    req.TicketID,
		Subject:     req.Subject,
		Body:        req.Body,
		Description: req.Description,
	})
	switch {
	case errors.Is(err, ingest.ErrValidation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ingest.ErrOverloaded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		log.Printf("api: submit ticket: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusAccepted, resp)
	}
}

func (s *Server) getStatus(c *gin.Context) {
	status, err := s.consumer.GetStatus(c.Request.Context(), c.Param("id"))
	s.respondStatus(c, status, err)
}

func (s *Server) popNext(c *gin.Context) {
	status, err := s.consumer.PopNextReady(c.Request.Context())
	s.respondStatus(c, status, err)
}

func (s *Server) respondStatus(c *gin.Context, status *ticket.TicketStatus, err error) {
	switch {
	case errors.Is(err, consumer.ErrNotFound), errors.Is(err, consumer.ErrEmpty):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case err != nil:
		log.Printf("api: status lookup: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		c.JSON(http.StatusOK, status)
	}
}

func (s *Server) listQueue(c *gin.Context) {
	statuses, err := s.consumer.ListQueue(c.Request.Context())
	if err != nil {
		log.Printf("api: list queue: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, statuses)
}

func (s *Server) getHistory(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "audit store not configured"})
		return
	}
	entries, err := s.audit.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Printf("api: get history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) streamReady(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	send := make(chan []byte, 16)
	s.wsMu.Lock()
	s.wsClients[conn] = send
	s.wsMu.Unlock()

	defer func() {
		s.wsMu.Lock()
		delete(s.wsClients, conn)
		s.wsMu.Unlock()
		conn.Close()
	}()

	for payload := range send {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// SubscribeReady subscribes to the worker's ready-event subject so every
// api process fans out completions to its own WebSocket clients, even
// when the worker that produced them runs in a different process.
func (s *Server) SubscribeReady(nats *messaging.Client) error {
	s.nats = nats
	return nats.Subscribe(notify.ReadySubject, func(msg *natsgo.Msg) {
		var status ticket.TicketStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			log.Printf("api: decode ready event: %v", err)
			return
		}
		s.PublishReady(status)
	})
}

// PublishReady implements worker.ReadyPublisher: it fans a completed
// ticket out to every connected WebSocket client.
func (s *Server) PublishReady(status ticket.TicketStatus) {
	payload, err := json.Marshal(status)
	if err != nil {
		return
	}

	s.wsMu.RLock()
	defer s.wsMu.RUnlock()
	for _, send := range s.wsClients {
		select {
		case send <- payload:
		default:
			// Slow client; drop rather than block the worker.
		}
	}
}
