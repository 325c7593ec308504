package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/shotcoach/pkg/cache"
	"github.com/menta2k/shotcoach/pkg/composition"
	"github.com/menta2k/shotcoach/pkg/processing"
	"github.com/menta2k/shotcoach/pkg/session"
	"github.com/menta2k/shotcoach/pkg/types"
)

// MaxIntensity is the top of the blur intensity scale
const MaxIntensity = 20

// Service is what the handlers need from the coach
type Service interface {
	Evaluate(id composition.ID, obs types.Observation, frame types.Size, sample image.Image) (composition.Result, error)
	EvaluateImage(ctx context.Context, id composition.ID, img image.Image) (composition.Result, error)
	ApplyBackgroundBlur(ctx context.Context, img image.Image, intensity float64, useCache bool) image.Image
	GenerateBlurPreview(ctx context.Context, img image.Image, intensity float64, previewSize int) image.Image
	Fingerprint(img image.Image) string
	ClearCache()
	ClearCacheForID(id string) int
	StartSession(img image.Image) session.Session
	EndSession(mode session.EndMode)
	ActiveSession() (session.Session, bool)
	CacheStats() cache.Stats
	HandleMemoryPressure()
	Processor() *processing.Processor
}

// Config holds handler defaults
type Config struct {
	PreviewSize int
	Quality     int
	Version     string
}

// Handler serves the HTTP API
type Handler struct {
	service Service
	config  Config
	logger  logrus.FieldLogger
}

// NewHandler creates a handler
func NewHandler(service Service, config Config, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.PreviewSize <= 0 {
		config.PreviewSize = 512
	}
	if config.Quality <= 0 {
		config.Quality = 90
	}
	return &Handler{service: service, config: config, logger: logger}
}

type evaluateRequest struct {
	Composition string            `json:"composition" binding:"required"`
	Observation types.Observation `json:"observation"`
	Frame       types.Size        `json:"frame"`
}

// Evaluate scores a subject box sent as JSON, or an uploaded image
func (h *Handler) Evaluate(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.evaluateImage(c)
		return
	}

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := composition.ParseID(req.Composition)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Evaluate(id, req.Observation, req.Frame, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) evaluateImage(c *gin.Context) {
	id, err := composition.ParseID(c.DefaultPostForm("composition", string(composition.RuleOfThirdsID)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	img, ok := h.readImage(c)
	if !ok {
		return
	}

	result, err := h.service.EvaluateImage(c.Request.Context(), id, img)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Blur returns the uploaded image with its background blurred
func (h *Handler) Blur(c *gin.Context) {
	intensity, ok := h.intensity(c)
	if !ok {
		return
	}
	useCache, err := strconv.ParseBool(c.DefaultPostForm("cache", "true"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cache must be a boolean"})
		return
	}
	img, ok := h.readImage(c)
	if !ok {
		return
	}

	out := h.service.ApplyBackgroundBlur(c.Request.Context(), img, intensity, useCache)
	h.writeImage(c, img, out)
}

// Preview returns a downscaled blur preview of the uploaded image
func (h *Handler) Preview(c *gin.Context) {
	intensity, ok := h.intensity(c)
	if !ok {
		return
	}
	size, err := strconv.Atoi(c.DefaultPostForm("size", strconv.Itoa(h.config.PreviewSize)))
	if err != nil || size <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "size must be a positive integer"})
		return
	}
	img, ok := h.readImage(c)
	if !ok {
		return
	}

	out := h.service.GenerateBlurPreview(c.Request.Context(), img, intensity, size)
	h.writeImage(c, img, out)
}

// CacheStats reports cache counts and memory
func (h *Handler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.CacheStats())
}

// ClearCache drops every cached entry
func (h *Handler) ClearCache(c *gin.Context) {
	h.service.ClearCache()
	c.JSON(http.StatusOK, gin.H{"message": "cache cleared"})
}

// ClearImageCache drops the entries of one image fingerprint
func (h *Handler) ClearImageCache(c *gin.Context) {
	id := c.Param("fingerprint")
	removed := h.service.ClearCacheForID(id)
	c.JSON(http.StatusOK, gin.H{"fingerprint": id, "removed": removed})
}

// StartSession opens an editing session for the uploaded image
func (h *Handler) StartSession(c *gin.Context) {
	img, ok := h.readImage(c)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, h.service.StartSession(img))
}

// GetSession returns the active session
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.service.ActiveSession()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}
	c.JSON(http.StatusOK, s)
}

// EndSession closes the active session. mode=keep retains the current image's entries.
func (h *Handler) EndSession(c *gin.Context) {
	var mode session.EndMode
	switch c.DefaultQuery("mode", "clear") {
	case "clear":
		mode = session.EndClearAll
	case "keep":
		mode = session.EndKeepCurrent
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be clear or keep"})
		return
	}
	h.service.EndSession(mode)
	c.JSON(http.StatusOK, gin.H{"message": "session ended"})
}

// MemoryPressure clears all caches
func (h *Handler) MemoryPressure(c *gin.Context) {
	h.service.HandleMemoryPressure()
	c.JSON(http.StatusOK, gin.H{"message": "caches cleared"})
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "shotcoach",
		"version": h.config.Version,
	})
}

func (h *Handler) intensity(c *gin.Context) (float64, bool) {
	intensity, err := strconv.ParseFloat(c.DefaultPostForm("intensity", "10"), 64)
	if err != nil || math.IsNaN(intensity) || intensity < 0 || intensity > MaxIntensity {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("intensity must be a number between 0 and %d", MaxIntensity)})
		return 0, false
	}
	return intensity, true
}

func (h *Handler) readImage(c *gin.Context) (image.Image, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return nil, false
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	defer f.Close()

	img, err := h.service.Processor().Read(f)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return img, true
}

// writeImage encodes out in the requested format, tagging it with the source fingerprint
func (h *Handler) writeImage(c *gin.Context, src, out image.Image) {
	format := processing.ParseFormat(c.DefaultPostForm("format", string(processing.JPEG)))

	var buf bytes.Buffer
	if err := h.service.Processor().Encode(&buf, out, format, h.config.Quality); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("X-Image-Fingerprint", h.service.Fingerprint(src))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, processing.ErrInvalidImage) {
		status = http.StatusBadRequest
	}
	if status >= 500 {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
