// Package server exposes the HTTP API: order acceptance, order lookup,
// the websocket status subscription and operational endpoints.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aidin1998/dexroute/internal/dispatch"
	"github.com/Aidin1998/dexroute/internal/models"
	"github.com/Aidin1998/dexroute/internal/statushub"
	"github.com/Aidin1998/dexroute/internal/store"
	"github.com/Aidin1998/dexroute/pkg/metrics"
)

// Server wires the HTTP surface to the dispatcher, store and hub.
type Server struct {
	router     *gin.Engine
	logger     *zap.Logger
	store      store.Store
	dispatcher *dispatch.Dispatcher
	hub        *statushub.Hub
}

// registerTagNames makes validation errors report json field names
// instead of Go struct field names.
func registerTagNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// NewServer creates the API server and registers all routes.
func NewServer(logger *zap.Logger, st store.Store, dispatcher *dispatch.Dispatcher, hub *statushub.Hub) *Server {
	registerTagNames()
	s := &Server{
		logger:     logger,
		store:      st,
		dispatcher: dispatcher,
		hub:        hub,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/healthz", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/orders/execute", s.executeOrder)
		api.GET("/orders/ws", s.orderStatusWS)
		api.GET("/orders/:id", s.getOrder)
		api.GET("/orders/:id/events", s.listOrderEvents)
	}

	s.router = router
	return s
}

// Router returns the gin engine for the http server and tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// executeOrder accepts a market order, persists the pending snapshot
// and enqueues the pipeline run. Two identical requests produce two
// distinct orders.
func (s *Server) executeOrder(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": bindingErrorMessage(fieldErrs)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:        uuid.NewString(),
		Request:   req,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveOrder(c.Request.Context(), order); err != nil {
		s.logger.Error("Failed to persist accepted order",
			zap.String("order_id", order.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept order"})
		return
	}

	if err := s.dispatcher.Submit(c.Request.Context(), order.ID, req); err != nil {
		s.logger.Error("Failed to enqueue order",
			zap.String("order_id", order.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue order"})
		return
	}

	metrics.OrdersAccepted.Inc()
	c.JSON(http.StatusOK, gin.H{"order_id": order.ID})
}

// bindingErrorMessage renders the first field error in terms of the
// request's json field names.
func bindingErrorMessage(errs validator.ValidationErrors) string {
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// getOrder returns the persisted snapshot, the source of truth for an
// order's outcome when no live observer was attached.
func (s *Server) getOrder(c *gin.Context) {
	order, err := s.store.GetOrder(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// listOrderEvents returns the order's persisted status history.
func (s *Server) listOrderEvents(c *gin.Context) {
	records, err := s.store.ListStatusEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load status history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": c.Param("id"), "events": records})
}
