package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking_backend/internal/service"
)

type LPRHandler struct {
	lprService    *service.LPRService
	maxImageBytes int64
}

func NewLPRHandler(lprService *service.LPRService, maxImageBytes int64) *LPRHandler {
	return &LPRHandler{lprService: lprService, maxImageBytes: maxImageBytes}
}

// POST /plate-recognition/recognize (multipart field "image")
func (h *LPRHandler) Recognize(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+1<<20)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided", "details": err.Error()})
		return
	}
	if fileHeader.Size > h.maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image too large"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read image", "details": err.Error()})
		return
	}
	defer f.Close()
	image, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read image", "details": err.Error()})
		return
	}
	if len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty image"})
		return
	}
	log.Printf("LPRHandler: received %d bytes for plate recognition", len(image))

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	resp, err := h.lprService.Recognize(c.Request.Context(), fileHeader.Filename, contentType, image)
	if err != nil {
		if resp != nil {
			c.JSON(statusFor(err), resp)
			return
		}
		respondError(c, err, "Plate recognition failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}
