package hookserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/oson-apps/notify-engine/internal/challenge"
	"github.com/oson-apps/notify-engine/internal/model"
)

const contextRequestID = "request_id"

// Server exposes the identity-provider hook over HTTP. The provider POSTs one
// event per step; the response body is the mutated event.
type Server struct {
	handler *challenge.Handler
}

func NewServer(handler *challenge.Handler) *Server {
	return &Server{handler: handler}
}

func (s *Server) Router(metricsEnabled bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestID(), requestLogger(), recovery())

	r.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health/ready", func(c *gin.Context) { c.Status(http.StatusOK) })
	if metricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.POST("/hooks/auth", s.handleHook)
	return r
}

func (s *Server) handleHook(c *gin.Context) {
	var evt model.HookEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "malformed hook event",
			"trace_id": c.GetString(contextRequestID),
		})
		return
	}

	c.JSON(http.StatusOK, s.handler.Handle(c.Request.Context(), &evt))
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", c.GetString(contextRequestID)).
			Msg("hook request")
	}
}

func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("path", c.Request.URL.Path).
					Str("request_id", c.GetString(contextRequestID)).
					Msg("hook panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":    "internal server error",
					"trace_id": c.GetString(contextRequestID),
				})
			}
		}()
		c.Next()
	}
}
