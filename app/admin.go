package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mmayman666/Otouri-app-final-sub001/app/config"
	"github.com/mmayman666/Otouri-app-final-sub001/app/models"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheet    = "Users"
	exportMaxUsers = 10000
)

// RequireAdmin rejects callers whose profile lacks the admin flag.
func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			c.Abort()
			return
		}
		profile, err := s.store.GetProfile(c.Request.Context(), userID)
		if errors.Is(err, ErrNotFound) || (err == nil && !profile.IsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Error("admin check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
		c.Next()
	}
}

func (s *Server) AdminStats(c *gin.Context) {
	stats, err := s.store.AdminStats(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("admin stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) AdminUsers(c *gin.Context) {
	limit, offset := pageParams(c)
	users, err := s.store.ListUserOverviews(c.Request.Context(), limit, offset)
	if err != nil {
		s.log.WithError(err).Error("admin users failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "limit": limit, "offset": offset})
}

// AdminSubscriptions lists subscriptions, optionally filtered by ?status=.
func (s *Server) AdminSubscriptions(c *gin.Context) {
	status := models.SubscriptionStatus(c.Query("status"))
	switch status {
	case "", models.StatusActive, models.StatusPastDue, models.StatusCanceled, models.StatusIncomplete, models.StatusInactive:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}

	limit, offset := pageParams(c)
	subs, err := s.store.ListSubscriptions(c.Request.Context(), status, limit, offset)
	if err != nil {
		s.log.WithError(err).Error("admin subscriptions failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscriptions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "limit": limit, "offset": offset})
}

// AdminExportUsers downloads the user overview as an XLSX workbook.
func (s *Server) AdminExportUsers(c *gin.Context) {
	users, err := s.store.ListUserOverviews(c.Request.Context(), exportMaxUsers, 0)
	if err != nil {
		s.log.WithError(err).Error("admin export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export users"})
		return
	}

	f, err := buildUsersWorkbook(users)
	if err != nil {
		s.log.WithError(err).Error("build users workbook failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export users"})
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("otouri_users_%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	c.Header("Content-Transfer-Encoding", "binary")
	if err := f.Write(c.Writer); err != nil {
		s.log.WithError(err).Error("write users workbook failed")
	}
}

func buildUsersWorkbook(users []models.UserOverview) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	headers := []string{"No", "User ID", "Email", "Name", "Admin", "Plan", "Status", "Credits Used", "Credits Limit", "Joined"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, err
		}
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#7C3AED"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, header); err != nil {
		return nil, err
	}

	for i, u := range users {
		row := i + 2
		limit := any(u.CreditsMax)
		if u.CreditsMax < 0 {
			limit = "unlimited"
		}
		values := []any{i + 1, u.UserID, u.Email, u.FullName, u.IsAdmin, string(u.Plan), string(u.Status), u.CreditsUsed, limit, u.CreatedAt.Format("2006-01-02")}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, err
			}
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 6)
	_ = f.SetColWidth(exportSheet, "B", "D", 36)
	_ = f.SetColWidth(exportSheet, "E", "I", 14)
	_ = f.SetColWidth(exportSheet, "J", "J", 12)
	return f, nil
}

func (s *PGStore) AdminStats(ctx context.Context) (models.AdminStats, error) {
	var st models.AdminStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM subscriptions WHERE plan_type = 'premium' AND status IN ('active', 'past_due')),
			(SELECT COUNT(*) FROM subscriptions WHERE status = 'past_due'),
			(SELECT COUNT(*) FROM chat_history),
			(SELECT COUNT(*) FROM image_search_history),
			(SELECT COUNT(*) FROM favorites),
			(SELECT COALESCE(SUM(credits_used), 0) FROM user_credits),
			(SELECT COUNT(*) FROM notifications WHERE NOT read);
	`).Scan(
		&st.TotalUsers, &st.PremiumUsers, &st.PastDueSubscribers, &st.TotalChats,
		&st.TotalImageSearches, &st.TotalFavorites, &st.CreditsConsumed, &st.UnreadNotifications,
	)
	return st, err
}

func (s *PGStore) ListUserOverviews(ctx context.Context, limit, offset int) ([]models.UserOverview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.user_id, p.email, p.full_name, p.is_admin,
		       COALESCE(s.plan_type, 'free'), COALESCE(s.status, 'inactive'),
		       COALESCE(c.credits_used, 0), COALESCE(c.credits_limit, $3),
		       p.created_at
		FROM profiles p
		LEFT JOIN subscriptions s ON s.user_id = p.user_id
		LEFT JOIN user_credits c ON c.user_id = p.user_id
		ORDER BY p.created_at DESC
		LIMIT $1 OFFSET $2;
	`, limit, offset, config.DefaultFreeCreditLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.UserOverview{}
	for rows.Next() {
		var (
			u           models.UserOverview
			email, name sql.NullString
		)
		if err := rows.Scan(&u.UserID, &email, &name, &u.IsAdmin, &u.Plan, &u.Status, &u.CreditsUsed, &u.CreditsMax, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Email = email.String
		u.FullName = name.String
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PGStore) ListSubscriptions(ctx context.Context, status models.SubscriptionStatus, limit, offset int) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, stripe_customer_id, stripe_subscription_id, stripe_price_id,
		       status, plan_type, current_period_start, current_period_end,
		       cancel_at_period_end, updated_at
		FROM subscriptions
		WHERE $1 = '' OR status = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3;
	`, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Subscription{}
	for rows.Next() {
		var (
			sub                           models.Subscription
			customer, subscription, price sql.NullString
			periodStart, periodEnd        sql.NullTime
		)
		if err := rows.Scan(
			&sub.UserID, &customer, &subscription, &price,
			&sub.Status, &sub.Plan, &periodStart, &periodEnd,
			&sub.CancelAtPeriodEnd, &sub.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sub.StripeCustomerID = customer.String
		sub.StripeSubscription = subscription.String
		sub.StripePriceID = price.String
		sub.CurrentPeriodStart = timePtr(periodStart)
		sub.CurrentPeriodEnd = timePtr(periodEnd)
		out = append(out, sub)
	}
	return out, rows.Err()
}
