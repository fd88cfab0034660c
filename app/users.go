// Package app provides user persistence helpers for authenticated requests.
package app

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"
	"github.com/mmayman666/Otouri-app-final-sub001/auth"

	"github.com/gin-gonic/gin"
)

// upsertProfileFromClaims runs on every authenticated request so downstream
// rows always have a profile to reference.
func (s *Server) upsertProfileFromClaims(c *gin.Context, claims *auth.Claims) error {
	if claims == nil || claims.Subject == "" {
		return nil
	}
	return s.store.UpsertProfile(c.Request.Context(), models.Profile{
		UserID:   claims.Subject,
		Email:    claims.Email,
		FullName: claims.FullName,
	})
}

func (s *PGStore) UpsertProfile(ctx context.Context, p models.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, email, full_name, last_seen_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			email        = COALESCE(EXCLUDED.email, profiles.email),
			full_name    = COALESCE(EXCLUDED.full_name, profiles.full_name),
			last_seen_at = now();
	`, p.UserID, nullIfEmpty(p.Email), nullIfEmpty(p.FullName))
	return err
}

func (s *PGStore) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var (
		p     models.Profile
		email sql.NullString
		name  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, full_name, is_admin, created_at, last_seen_at
		FROM profiles
		WHERE user_id = $1;
	`, userID).Scan(&p.UserID, &email, &name, &p.IsAdmin, &p.CreatedAt, &p.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, err
	}
	p.Email = email.String
	p.FullName = name.String
	return p, nil
}
