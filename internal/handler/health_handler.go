package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// Checker reports whether a dependency is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Ping calls f.
func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checkers map[string]Checker
}

// NewHealthHandler creates a new HealthHandler instance. Each checker is
// reported under its map key by the readiness check.
func NewHealthHandler(checkers map[string]Checker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

// Liveness checks if the application is running.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now(),
	})
}

// Readiness checks if the application is ready to serve traffic.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	body := gin.H{"status": "UP", "time": time.Now()}
	for _, name := range names {
		if err := h.checkers[name].Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "DOWN"
			body[name] = "unhealthy"
			body[name+"_error"] = err.Error()
			continue
		}
		body[name] = "healthy"
	}

	c.JSON(status, body)
}
