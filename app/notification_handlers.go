package app

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListNotifications returns the caller's feed with its unread count.
func (s *Server) ListNotifications(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	limit, _ := pageParams(c)

	notes, err := s.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("list notifications failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	unread, err := s.store.UnreadNotifications(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("unread count failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notes,
		"unread":        unread,
	})
}

func (s *Server) UnreadNotificationCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	unread, err := s.store.UnreadNotifications(c.Request.Context(), userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("unread count failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": unread})
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	err := s.store.MarkNotificationRead(c.Request.Context(), userID, id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("mark notification read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "read": true})
}

func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	n, err := s.store.MarkAllNotificationsRead(c.Request.Context(), userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("mark all notifications read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

// PopulateNotifications backfills the feed on a user's first dashboard visit.
func (s *Server) PopulateNotifications(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	created, err := s.populator.PopulateIfEmpty(c.Request.Context(), userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("populate notifications failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to populate notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}
