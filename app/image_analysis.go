package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	maxImageBytes     = 10 << 20
	fallbackPerfume   = "Unspecified"
	fallbackConfident = 50
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// fallbackAnalysis is returned whenever the model output cannot be used.
func fallbackAnalysis() models.PerfumeAnalysis {
	return models.PerfumeAnalysis{
		PerfumeName: fallbackPerfume,
		Brand:       "Unknown",
		Type:        "Unknown",
		Confidence:  fallbackConfident,
		Notes:       []string{},
		Description: "We could not identify this perfume with certainty. Try a clearer photo with the bottle label visible.",
		Occasions:   []string{},
		Longevity:   "Unknown",
		Sillage:     "Unknown",
		Gender:      "Unisex",
		PriceRange:  "Unknown",
		Similar:     []models.SimilarPerfume{},
	}
}

// parsePerfumeAnalysis decodes model output into the response contract.
func parsePerfumeAnalysis(raw string) (models.PerfumeAnalysis, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return models.PerfumeAnalysis{}, errors.New("no JSON object in model output")
	}

	var out models.PerfumeAnalysis
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return models.PerfumeAnalysis{}, err
	}
	out.PerfumeName = strings.TrimSpace(out.PerfumeName)
	if out.PerfumeName == "" {
		return models.PerfumeAnalysis{}, errors.New("model output has no perfumeName")
	}

	out.Confidence = math.Round(clamp(out.Confidence, 0, 100))
	if out.Notes == nil {
		out.Notes = []string{}
	}
	if out.Occasions == nil {
		out.Occasions = []string{}
	}
	if out.Similar == nil {
		out.Similar = []models.SimilarPerfume{}
	}
	for i := range out.Similar {
		out.Similar[i].Similarity = math.Round(clamp(out.Similar[i].Similarity, 0, 100))
	}
	return out, nil
}

// ImageAnalysis identifies a perfume from an uploaded photo. Costs one credit.
func (s *Server) ImageAnalysis(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if s.assistant == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image analysis not configured"})
		return
	}

	header, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image file"})
		return
	}
	if header.Size > maxImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image too large, maximum 10MB"})
		return
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image file"})
		return
	}
	if len(data) > maxImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image too large, maximum 10MB"})
		return
	}
	mimeType := http.DetectContentType(data)
	if !allowedImageTypes[mimeType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image format, use JPG, PNG, WEBP or GIF"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.HTTP.AnalysisTimeout)
	defer cancel()

	var raw string
	decision, err := s.gate.Run(ctx, userID, ActionImageAnalysis, 1, func(ctx context.Context) error {
		var err error
		raw, err = s.assistant.AnalyzeImage(ctx, data, mimeType)
		return err
	})
	if err != nil {
		if respondGateError(c, decision, err) {
			return
		}
		s.log.WithError(err).WithField("user_id", userID).Error("image analysis provider failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image analysis failed, please try again"})
		return
	}

	result, err := parsePerfumeAnalysis(raw)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"output":  truncate(raw, 200),
		}).Warn("unparsable vision output, using fallback")
		result = fallbackAnalysis()
	}

	s.recordImageSearch(context.WithoutCancel(c.Request.Context()), userID, data, result)

	c.Header("X-Remaining-Credits", remainingHeader(decision))
	c.JSON(http.StatusOK, result)
}

// recordImageSearch uploads the photo when an image store is configured and
// appends the search to history. Failures are logged only.
func (s *Server) recordImageSearch(ctx context.Context, userID string, image []byte, result models.PerfumeAnalysis) {
	search := models.ImageSearch{
		UserID:      userID,
		PerfumeName: result.PerfumeName,
		Confidence:  result.Confidence,
	}
	if s.images != nil {
		url, err := s.images.Upload(ctx, userID, image)
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("image upload failed")
		}
		search.ImageURL = url
	}
	if body, err := json.Marshal(result); err == nil {
		search.Result = body
	}
	if err := s.store.SaveImageSearch(ctx, search); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("save image search failed")
	}
}
