package app

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/gin-gonic/gin"
)

type addFavoriteRequest struct {
	PerfumeName string `json:"perfume_name" binding:"required"`
	Brand       string `json:"brand"`
	ImageURL    string `json:"image_url"`
}

// ListFavorites returns the caller's saved perfumes, newest first.
func (s *Server) ListFavorites(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	limit, _ := pageParams(c)
	favs, err := s.store.ListFavorites(c.Request.Context(), userID, limit)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("list favorites failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load favorites"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": favs})
}

func (s *Server) AddFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req addFavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PerfumeName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "perfume_name is required"})
		return
	}

	fav, err := s.store.AddFavorite(c.Request.Context(), models.Favorite{
		UserID:      userID,
		PerfumeName: strings.TrimSpace(req.PerfumeName),
		Brand:       strings.TrimSpace(req.Brand),
		ImageURL:    strings.TrimSpace(req.ImageURL),
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("add favorite failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save favorite"})
		return
	}
	c.JSON(http.StatusCreated, fav)
}

func (s *Server) RemoveFavorite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid favorite id"})
		return
	}

	err = s.store.RemoveFavorite(c.Request.Context(), userID, id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "favorite not found"})
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("remove favorite failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove favorite"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListChatHistory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	limit, _ := pageParams(c)
	chats, err := s.store.ListChats(c.Request.Context(), userID, limit)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("list chats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (s *Server) ListImageSearches(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	limit, _ := pageParams(c)
	searches, err := s.store.ListImageSearches(c.Request.Context(), userID, limit)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("list image searches failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load image searches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"searches": searches})
}

// Dashboard summarizes activity counts and the credit balance in one call.
func (s *Server) Dashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	counts, err := s.store.DashboardCounts(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("dashboard counts failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard"})
		return
	}
	usage, err := s.ledger.Snapshot(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("usage lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dashboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"counts": counts,
		"usage":  usage,
	})
}
