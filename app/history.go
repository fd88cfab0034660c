package app

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"
)

func (s *PGStore) ListFavorites(ctx context.Context, userID string, limit int) ([]models.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, perfume_name, brand, image_url, created_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2;
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Favorite{}
	for rows.Next() {
		var (
			f   models.Favorite
			img sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.UserID, &f.PerfumeName, &f.Brand, &img, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.ImageURL = img.String
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PGStore) AddFavorite(ctx context.Context, fav models.Favorite) (models.Favorite, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO favorites (user_id, perfume_name, brand, image_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at;
	`, fav.UserID, fav.PerfumeName, fav.Brand, nullIfEmpty(fav.ImageURL)).Scan(&fav.ID, &fav.CreatedAt)
	if err != nil {
		return models.Favorite{}, err
	}
	return fav, nil
}

// RemoveFavorite deletes one of the user's favorites. Rows owned by someone
// else look the same as missing ones.
func (s *PGStore) RemoveFavorite(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM favorites WHERE id = $1 AND user_id = $2;
	`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveChat appends one exchange and returns the user's chat count afterwards.
func (s *PGStore) SaveChat(ctx context.Context, chat models.ChatHistory) (int, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, message, response)
		VALUES ($1, $2, $3);
	`, chat.UserID, chat.Message, chat.Response); err != nil {
		return 0, err
	}
	return s.CountChats(ctx, chat.UserID)
}

func (s *PGStore) ListChats(ctx context.Context, userID string, limit int) ([]models.ChatHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, message, response, created_at
		FROM chat_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2;
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChatHistory{}
	for rows.Next() {
		var ch models.ChatHistory
		if err := rows.Scan(&ch.ID, &ch.UserID, &ch.Message, &ch.Response, &ch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *PGStore) CountChats(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_history WHERE user_id = $1;`, userID).Scan(&n)
	return n, err
}

func (s *PGStore) SaveImageSearch(ctx context.Context, search models.ImageSearch) error {
	var result any
	if len(search.Result) > 0 {
		result = []byte(search.Result)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_search_history (user_id, image_url, perfume_name, confidence, result)
		VALUES ($1, $2, $3, $4, $5);
	`, search.UserID, nullIfEmpty(search.ImageURL), search.PerfumeName, search.Confidence, result)
	return err
}

func (s *PGStore) ListImageSearches(ctx context.Context, userID string, limit int) ([]models.ImageSearch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, image_url, perfume_name, confidence, result, created_at
		FROM image_search_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2;
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ImageSearch{}
	for rows.Next() {
		var (
			is     models.ImageSearch
			img    sql.NullString
			result []byte
		)
		if err := rows.Scan(&is.ID, &is.UserID, &img, &is.PerfumeName, &is.Confidence, &result, &is.CreatedAt); err != nil {
			return nil, err
		}
		is.ImageURL = img.String
		if len(result) > 0 {
			is.Result = result
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

func (s *PGStore) CountImageSearches(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_search_history WHERE user_id = $1;`, userID).Scan(&n)
	return n, err
}

func (s *PGStore) LatestRecommendation(ctx context.Context, userID string) (models.Recommendation, error) {
	var r models.Recommendation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, perfume_name, brand, reason, created_at
		FROM recommendations
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1;
	`, userID).Scan(&r.ID, &r.UserID, &r.PerfumeName, &r.Brand, &r.Reason, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Recommendation{}, ErrNotFound
	}
	if err != nil {
		return models.Recommendation{}, err
	}
	return r, nil
}

func (s *PGStore) DashboardCounts(ctx context.Context, userID string) (models.DashboardCounts, error) {
	var dc models.DashboardCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM favorites WHERE user_id = $1),
			(SELECT COUNT(*) FROM chat_history WHERE user_id = $1),
			(SELECT COUNT(*) FROM image_search_history WHERE user_id = $1),
			(SELECT COUNT(*) FROM recommendations WHERE user_id = $1),
			(SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read);
	`, userID).Scan(&dc.Favorites, &dc.Chats, &dc.ImageSearches, &dc.Recommendations, &dc.UnreadNotifications)
	return dc, err
}
