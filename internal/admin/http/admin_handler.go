package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davicafu/orderflow/internal/jobs/queue"
)

// AdminHandler expone la operación de las colas de jobs: métricas,
// pausa/reanudación y limpieza.
type AdminHandler struct {
	queues *queue.Service
}

func NewAdminHandler(queues *queue.Service) *AdminHandler {
	return &AdminHandler{queues: queues}
}

func RegisterAdminRoutes(r *gin.Engine, handler *AdminHandler, registry *prometheus.Registry) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	admin := r.Group("/admin/queues")
	{
		admin.GET("/", handler.ListQueues)
		admin.GET("/:name", handler.GetQueue)
		admin.POST("/:name/pause", handler.PauseQueue)
		admin.POST("/:name/resume", handler.ResumeQueue)
		admin.POST("/:name/clean", handler.CleanQueue)
		admin.POST("/:name/empty", handler.EmptyQueue)
	}
}

// ---------------- Handlers ----------------

// ListQueues endpoint GET /admin/queues
func (h *AdminHandler) ListQueues(c *gin.Context) {
	metrics, err := h.queues.GetAllQueueMetrics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// GetQueue endpoint GET /admin/queues/:name
func (h *AdminHandler) GetQueue(c *gin.Context) {
	metrics, err := h.queues.GetQueueMetrics(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

// PauseQueue endpoint POST /admin/queues/:name/pause
func (h *AdminHandler) PauseQueue(c *gin.Context) {
	h.act(c, h.queues.PauseQueue, "paused")
}

// ResumeQueue endpoint POST /admin/queues/:name/resume
func (h *AdminHandler) ResumeQueue(c *gin.Context) {
	h.act(c, h.queues.ResumeQueue, "resumed")
}

// CleanQueue endpoint POST /admin/queues/:name/clean?grace=3600
// grace son segundos: solo se limpian jobs terminados hace más de ese tiempo.
func (h *AdminHandler) CleanQueue(c *gin.Context) {
	graceSecs, err := strconv.Atoi(c.DefaultQuery("grace", "3600"))
	if err != nil || graceSecs < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grace"})
		return
	}

	removed, err := h.queues.CleanQueue(c.Request.Context(), c.Param("name"), time.Duration(graceSecs)*time.Second)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleaned", "removed": removed})
}

// EmptyQueue endpoint POST /admin/queues/:name/empty
func (h *AdminHandler) EmptyQueue(c *gin.Context) {
	if err := h.queues.EmptyQueue(c.Request.Context(), c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "emptied"})
}

func (h *AdminHandler) act(c *gin.Context, action func(ctx context.Context, name string) error, status string) {
	if err := action(c.Request.Context(), c.Param("name")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
