package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicrezo/inference-gateway/internal/detection"
	"github.com/civicrezo/inference-gateway/internal/usecase"
)

type analyzeRequest struct {
	ImagePath string `json:"image_path"`
	ImageURL  string `json:"image_url"`
	Image     string `json:"image"`
	UseCache  *bool  `json:"use_cache"`
}

// imageSource returns the first populated image reference, mirroring the
// path → url → inline precedence of the inbound contract.
func (r analyzeRequest) imageSource() string {
	if r.ImagePath != "" {
		return r.ImagePath
	}
	if r.ImageURL != "" {
		return r.ImageURL
	}
	return r.Image
}

func (r analyzeRequest) useCache() bool {
	if r.UseCache == nil {
		return true
	}
	return *r.UseCache
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// guards the reporting endpoints and may be nil when auth is disabled.
func RegisterRoutes(router *gin.Engine, uc *usecase.AnalysisUseCase, inferenceServer string, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "Civic Issue Classifier Gateway",
			"server":  inferenceServer,
		})
	})

	router.POST("/analyze", func(c *gin.Context) {
		req, ok := bindAnalyzeRequest(c)
		if !ok {
			return
		}

		analysis, err := uc.Analyze(c.Request.Context(), req.imageSource(), req.useCache())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}

		predictions := analysis.Result.Predictions
		if predictions == nil {
			predictions = []detection.Prediction{}
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"request_id":  analysis.RequestID,
			"predictions": predictions,
			"confidence":  analysis.Result.TopConfidence,
			"raw_result":  analysis.Raw,
		})
	})

	router.POST("/validate", func(c *gin.Context) {
		req, ok := bindAnalyzeRequest(c)
		if !ok {
			return
		}

		analysis, err := uc.Analyze(c.Request.Context(), req.imageSource(), req.useCache())
		if err != nil {
			// Error responses deny by construction so callers can treat them
			// as a refusal without inspecting the message.
			c.JSON(http.StatusInternalServerError, gin.H{
				"success":     false,
				"error":       err.Error(),
				"confidence":  0,
				"allowUpload": false,
			})
			return
		}

		decision := analysis.Decision
		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"request_id":      analysis.RequestID,
			"confidence":      decision.Confidence,
			"modelConfidence": decision.Confidence,
			"allowUpload":     decision.AllowUpload,
			"message":         decision.Message,
			"detectedIssue":   decision.DetectedIssue,
		})
	})

	reports := router.Group("/")
	if authMiddleware != nil {
		reports.Use(authMiddleware)
	}

	reports.GET("/analyses/:id", func(c *gin.Context) {
		requestID := c.Param("id")

		log, err := uc.GetAnalysis(c.Request.Context(), requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":     log.RequestID,
			"source_hash":    log.SourceHash,
			"confidence":     log.TopConfidence,
			"detected_issue": log.DetectedIssue,
			"allow_upload":   log.AllowUpload,
			"malformed":      log.Malformed,
			"cache_hit":      log.CacheHit,
			"latency_ms":     log.LatencyMs,
			"created_at":     log.CreatedAt,
		})
	})

	reports.GET("/analyses/:id/duplicates", func(c *gin.Context) {
		requestID := c.Param("id")

		report, err := uc.GetDuplicateReport(c.Request.Context(), requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
			return
		}

		duplicates := make([]gin.H, 0, len(report.Duplicates))
		for _, dup := range report.Duplicates {
			duplicates = append(duplicates, gin.H{
				"request_id":     dup.RequestID,
				"confidence":     dup.TopConfidence,
				"detected_issue": dup.DetectedIssue,
				"allow_upload":   dup.AllowUpload,
				"created_at":     dup.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"request_id":  report.Request.RequestID,
			"source_hash": report.Request.SourceHash,
			"duplicates":  duplicates,
		})
	})

	reports.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			if errors.Is(err, usecase.ErrPersistenceDisabled) {
				c.JSON(http.StatusNotFound, gin.H{"error": "metrics not available"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func bindAnalyzeRequest(c *gin.Context) (analyzeRequest, bool) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No data provided"})
		return req, false
	}
	if req.imageSource() == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No image source provided"})
		return req, false
	}
	return req, true
}
