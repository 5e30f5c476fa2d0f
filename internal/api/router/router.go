package router

import (
	"net/http"

	"github.com/cuongbtq/vaulty/internal/api/handler"
	"github.com/gin-gonic/gin"
)

const serviceName = "vaulty-api"

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": serviceName,
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	ledgerHandler := handler.NewLedgerHandler(deps)

	// API v1 routes, read-only
	v1 := r.Group("/api/v1")
	{
		ledgers := v1.Group("/ledgers/:ledger")
		{
			// GET /api/v1/ledgers/:ledger/entries - page through a ledger in key order
			ledgers.GET("/entries", ledgerHandler.ListEntries)

			// GET /api/v1/ledgers/:ledger/entries/:key - one entry
			ledgers.GET("/entries/:key", ledgerHandler.GetEntry)
		}
	}

	return r
}
