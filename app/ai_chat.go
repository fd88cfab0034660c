package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	maxChatMessageRunes = 4000
	maxChatHistory      = 20
)

var errEmptyReply = errors.New("assistant returned an empty reply")

type chatRequest struct {
	Message string               `json:"message"`
	History []models.ChatMessage `json:"history"`
}

// buildConversation keeps the most recent turns and appends the new message.
func buildConversation(req chatRequest) []models.ChatMessage {
	history := req.History
	if len(history) > maxChatHistory {
		history = history[len(history)-maxChatHistory:]
	}
	out := make([]models.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := models.RoleUser
		if m.Role == models.RoleAssistant {
			role = models.RoleAssistant
		}
		out = append(out, models.ChatMessage{Role: role, Content: truncate(content, maxChatMessageRunes)})
	}
	return append(out, models.ChatMessage{Role: models.RoleUser, Content: strings.TrimSpace(req.Message)})
}

// AIChat streams one assistant reply as plain text. Costs one credit, charged
// when the provider accepts the request.
func (s *Server) AIChat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if len([]rune(req.Message)) > maxChatMessageRunes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}
	if s.assistant == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat assistant not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.HTTP.ChatTimeout)
	defer cancel()

	// The first chunk is read inside the gate so a stream that dies before
	// producing text is refunded and reported like any provider failure.
	var (
		stream ChatStream
		first  string
	)
	decision, err := s.gate.Run(ctx, userID, ActionChat, 1, func(ctx context.Context) error {
		var err error
		stream, err = s.assistant.StreamChat(ctx, buildConversation(req))
		if err != nil {
			return err
		}
		first, err = stream.Recv()
		if err != nil {
			stream.Close()
			if errors.Is(err, io.EOF) {
				return errEmptyReply
			}
			return err
		}
		return nil
	})
	if err != nil {
		if respondGateError(c, decision, err) {
			return
		}
		s.log.WithError(err).WithField("user_id", userID).Error("chat provider failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "the assistant is unavailable, please try again"})
		return
	}
	defer stream.Close()

	c.Header("X-Remaining-Credits", remainingHeader(decision))
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	var reply strings.Builder
	var streamErr error
	for chunk := first; ; {
		if _, err := io.WriteString(c.Writer, chunk); err != nil {
			streamErr = err
			break
		}
		c.Writer.Flush()
		reply.WriteString(chunk)

		chunk, err = stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
	}
	if streamErr != nil {
		s.log.WithError(streamErr).WithFields(logrus.Fields{
			"user_id": userID,
			"bytes":   reply.Len(),
		}).Warn("chat stream interrupted")
	}

	if reply.Len() == 0 {
		return
	}
	saveCtx := context.WithoutCancel(c.Request.Context())
	count, err := s.store.SaveChat(saveCtx, models.ChatHistory{
		UserID:   userID,
		Message:  strings.TrimSpace(req.Message),
		Response: reply.String(),
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("save chat failed")
		return
	}
	s.notifier.ChatMilestone(saveCtx, userID, count)
}
