// Package app provides public health and authenticated identity endpoints.
package app

import (
	"errors"
	"net/http"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the caller's profile together with plan and credit usage.
func (s *Server) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	profile, err := s.store.GetProfile(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.log.WithError(err).WithField("user_id", userID).Error("profile lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	if errors.Is(err, ErrNotFound) {
		profile = models.Profile{UserID: userID}
	}

	usage, err := s.ledger.Snapshot(c.Request.Context(), userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("usage lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile": profile,
		"plan":    usage.Plan,
		"usage":   usage,
	})
}

// Usage returns the caller's credit balance.
func (s *Server) Usage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	usage, err := s.ledger.Snapshot(c.Request.Context(), userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("usage lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}
	c.JSON(http.StatusOK, usage)
}

// respondGateError maps a credit gate failure onto the HTTP taxonomy. It returns
// false when err is not a gate rejection.
func respondGateError(c *gin.Context, decision Decision, err error) bool {
	switch {
	case errors.Is(err, ErrCreditLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":            "no remaining operations",
			"reason":           decision.Reason,
			"remainingCredits": decision.RemainingCredits,
		})
		return true
	case errors.Is(err, ErrUsageLookupFailed):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "could not verify your usage, please try again",
			"reason": decision.Reason,
		})
		return true
	}
	return false
}
