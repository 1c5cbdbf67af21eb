// Package api implements the HTTP proxy in front of the record store: a
// thin gin application with HTTP Basic auth that translates REST calls into
// socket protocol requests. All the hard state lives behind the socket,
// this layer only maps payloads and error kinds to HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/userdb/internal/api/config"
	"github.com/dmitrijs2005/userdb/internal/client"
	"github.com/dmitrijs2005/userdb/internal/common"
	"github.com/dmitrijs2005/userdb/internal/logging"
	"github.com/dmitrijs2005/userdb/internal/record"
)

type handlers struct {
	socketPath string
	logger     logging.Logger
}

// NewRouter builds the gin engine: basic auth on every record route, a
// request id on every log line.
func NewRouter(cfg *config.Config, logger logging.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	h := &handlers{
		socketPath: cfg.SocketPath,
		logger:     logger.With("module", "api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	authed := r.Group("/", gin.BasicAuth(gin.Accounts{cfg.AdminLogin: cfg.AdminPassword}))
	authed.POST("/records", h.create)
	authed.GET("/records/:ref", h.get)
	authed.PUT("/records/:ref", h.update)
	authed.DELETE("/records/:ref", h.del)
	authed.GET("/find", h.find)

	return r
}

func (h *handlers) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Header("X-Request-ID", id)
		c.Next()
		h.logger.Info(context.Background(), "Request handled",
			"id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

// dial opens a store connection for one request; a stale socket never
// outlives the request that hit it.
func (h *handlers) dial(c *gin.Context) *client.Client {
	cl, err := client.Dial(h.socketPath)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "store unavailable", "detail": err.Error()})
		return nil
	}
	return cl
}

// statusFor maps protocol error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrMalformedRef),
		errors.Is(err, common.ErrUnknownField),
		errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func splitFields(c *gin.Context) []string {
	raw := c.Query("fields")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (h *handlers) create(c *gin.Context) {
	var rec record.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cl := h.dial(c)
	if cl == nil {
		return
	}
	defer cl.Close()

	ref, err := cl.Create(rec)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ref": ref})
}

func (h *handlers) get(c *gin.Context) {
	cl := h.dial(c)
	if cl == nil {
		return
	}
	defer cl.Close()

	rec, err := cl.Get(c.Param("ref"), splitFields(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) update(c *gin.Context) {
	var patch map[string]string
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cl := h.dial(c)
	if cl == nil {
		return
	}
	defer cl.Close()

	rec, err := cl.Update(c.Param("ref"), patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handlers) del(c *gin.Context) {
	cl := h.dial(c)
	if cl == nil {
		return
	}
	defer cl.Close()

	if err := cl.Delete(c.Param("ref")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *handlers) find(c *gin.Context) {
	field := c.Query("field")
	value := c.Query("value")
	if field == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field parameter is required"})
		return
	}

	cl := h.dial(c)
	if cl == nil {
		return
	}
	defer cl.Close()

	results, err := cl.Find(field, value, splitFields(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
