package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nimasrn/rental-gateway/internal/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// receivedEvent is a transition event as the sink stored it.
type receivedEvent struct {
	ID         string                `json:"id"`
	ReceivedAt time.Time             `json:"received_at"`
	Event      model.TransitionEvent `json:"event"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	SinkID      string    `json:"sink_id"`
	Timestamp   time.Time `json:"timestamp"`
	Received    int       `json:"received"`
	FailureRate float64   `json:"failure_rate"`
}

// Sink keeps the last events posted by the status engine in memory. It is a
// development stand-in for a real notification consumer.
type Sink struct {
	mu          sync.Mutex
	events      []receivedEvent
	capacity    int
	failureRate float64
	sinkID      string
	rng         *rand.Rand
}

func NewSink(capacity int, failureRate float64) *Sink {
	return &Sink{
		capacity:    capacity,
		failureRate: failureRate,
		sinkID:      "WEBHOOK_SINK_" + uuid.New().String()[:8],
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Sink) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.failureRate
}

func (s *Sink) rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureRate
}

func (s *Sink) add(ev model.TransitionEvent) receivedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := receivedEvent{ID: uuid.NewString(), ReceivedAt: time.Now().UTC(), Event: ev}
	s.events = append(s.events, r)
	if len(s.events) > s.capacity {
		s.events = s.events[len(s.events)-s.capacity:]
	}
	return r
}

// list returns stored events, newest last, optionally for one transaction.
func (s *Sink) list(transactionID int64) []receivedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]receivedEvent, 0, len(s.events))
	for _, r := range s.events {
		if transactionID == 0 || r.Event.TransactionID == transactionID {
			out = append(out, r)
		}
	}
	return out
}

type Handler struct {
	sink *Sink
}

func NewHandler(sink *Sink) *Handler {
	return &Handler{sink: sink}
}

func (h *Handler) ReceiveEvent(c *gin.Context) {
	var ev model.TransitionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid event",
			"details": err.Error(),
		})
		return
	}
	if ev.TransactionID <= 0 || ev.NewStatus == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id and new_status are required"})
		return
	}

	if h.sink.shouldFail() {
		log.Warn().Int64("transaction_id", ev.TransactionID).Msg("Simulated sink failure")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sink temporarily unavailable"})
		return
	}

	r := h.sink.add(ev)
	old := ""
	if ev.OldStatus != nil {
		old = string(*ev.OldStatus)
	}
	log.Info().
		Str("id", r.ID).
		Str("type", ev.Type).
		Int64("transaction_id", ev.TransactionID).
		Str("old_status", old).
		Str("new_status", string(ev.NewStatus)).
		Str("reason", string(ev.Reason)).
		Int("overdue_lines", ev.OverdueLines).
		Int("max_days_overdue", ev.MaxDaysOverdue).
		Msg("Transition event received")

	c.JSON(http.StatusAccepted, gin.H{"id": r.ID})
}

func (h *Handler) ListEvents(c *gin.Context) {
	var txnID int64
	if v := c.Query("transaction_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction_id"})
			return
		}
		txnID = id
	}
	events := h.sink.list(txnID)
	c.JSON(http.StatusOK, gin.H{"items": events, "total": len(events)})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		SinkID:      h.sink.sinkID,
		Timestamp:   time.Now(),
		Received:    len(h.sink.list(0)),
		FailureRate: h.sink.rate(),
	})
}

// UpdateConfig changes the simulated failure rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		FailureRate *float64 `json:"failure_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.FailureRate != nil && *config.FailureRate >= 0 && *config.FailureRate <= 1.0 {
		h.sink.mu.Lock()
		h.sink.failureRate = *config.FailureRate
		h.sink.mu.Unlock()
		log.Info().Float64("rate", *config.FailureRate).Msg("Updated failure rate")
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Configuration updated",
		"failure_rate": h.sink.rate(),
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	hooks := router.Group("/hooks")
	{
		hooks.POST("/rentals", handler.ReceiveEvent)
		hooks.GET("/rentals", handler.ListEvents)
	}
	router.PUT("/config", handler.UpdateConfig)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	capacity := getEnvInt("SINK_CAPACITY", 1000)
	failureRate := getEnvFloat("FAILURE_RATE", 0)

	log.Info().
		Str("port", port).
		Int("capacity", capacity).
		Float64("failure_rate", failureRate).
		Msg("Starting rental webhook sink")

	handler := NewHandler(NewSink(capacity, failureRate))
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}
