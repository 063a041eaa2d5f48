package rest

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vsinha/forgetrace/pkg/infrastructure/logger"
)

// RouterConfig holds the optional middleware settings of the router
type RouterConfig struct {
	// Limiter rate limits every request per client IP; nil disables it
	Limiter *IPRateLimiter
	// CORSOrigins lists the browser origins allowed to call the API; empty disables CORS
	CORSOrigins []string
}

// NewRouter builds the gin engine
func NewRouter(h *Handler, log *logger.Logger, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(log))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", HeaderRequestID, HeaderTenantID},
			ExposeHeaders: []string{HeaderRequestID},
			MaxAge:        12 * time.Hour,
		}))
	}
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.RateLimit())
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1", TenantScope())
	h.RegisterRoutes(api)
	return r
}
