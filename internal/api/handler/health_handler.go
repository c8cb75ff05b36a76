package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC()})
}
