package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"
	"github.com/mmayman666/Otouri-app-final-sub001/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(nil, nil)
	w := serve(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(nil, nil)
	serve(s, http.MethodGet, "/health", "")

	w := serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestMeCreatesProfile(t *testing.T) {
	s, store := newTestServer(nil, nil)

	w := serve(s, http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Profile models.Profile       `json:"profile"`
		Plan    models.Plan          `json:"plan"`
		Usage   models.UsageSnapshot `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, auth.LocalDevSubject, body.Profile.UserID)
	assert.Equal(t, models.PlanFree, body.Plan)
	assert.Equal(t, 10, body.Usage.RemainingCredits)
	assert.Contains(t, store.profiles, auth.LocalDevSubject)
}

func TestProfileHookFailure(t *testing.T) {
	s, store := newTestServer(nil, nil)
	store.fail["UpsertProfile"] = true

	w := serve(s, http.MethodGet, "/api/usage", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNotificationFlow(t *testing.T) {
	s, store := newTestServer(nil, nil)

	w := serve(s, http.MethodPost, "/api/notifications/populate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"created":2}`, w.Body.String())

	w = serve(s, http.MethodGet, "/api/notifications/unread-count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unread":2}`, w.Body.String())

	id := store.notifications[0].ID
	w = serve(s, http.MethodPost, "/api/notifications/"+id+"/read", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(s, http.MethodGet, "/api/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Notifications []models.Notification `json:"notifications"`
		Unread        int                   `json:"unread"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Notifications, 2)
	assert.Equal(t, 1, list.Unread)

	w = serve(s, http.MethodPost, "/api/notifications/read-all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1}`, w.Body.String())

	w = serve(s, http.MethodPost, "/api/notifications/populate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"created":0}`, w.Body.String())
}

func TestMarkNotificationReadErrors(t *testing.T) {
	s, store := newTestServer(nil, nil)
	store.notifications = append(store.notifications, models.Notification{
		ID: "2b1f8f2e-8c1a-4c59-9a55-3f0c6f0d9a11", UserID: "someone-else", Kind: kindWelcome, CreatedAt: time.Now(),
	})

	w := serve(s, http.MethodPost, "/api/notifications/not-a-uuid/read", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, http.MethodPost, "/api/notifications/2b1f8f2e-8c1a-4c59-9a55-3f0c6f0d9a11/read", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, store.notifications[0].Read)
}

func TestFavoritesCRUD(t *testing.T) {
	s, store := newTestServer(nil, nil)

	w := serve(s, http.MethodPost, "/api/favorites", `{"perfume_name":" Oud Wood ","brand":"Tom Ford"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var fav models.Favorite
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fav))
	assert.Equal(t, "Oud Wood", fav.PerfumeName)

	w = serve(s, http.MethodPost, "/api/favorites", `{"brand":"Tom Ford"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, http.MethodGet, "/api/favorites", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Oud Wood")

	w = serve(s, http.MethodDelete, "/api/favorites/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(s, http.MethodDelete, "/api/favorites/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, http.MethodDelete, "/api/favorites/"+jsonNumber(fav.ID), "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, store.favorites)
}

func TestDashboard(t *testing.T) {
	s, store := newTestServer(nil, nil)
	store.chats = append(store.chats, models.ChatHistory{UserID: auth.LocalDevSubject}, models.ChatHistory{UserID: "other"})
	store.searches = append(store.searches, models.ImageSearch{UserID: auth.LocalDevSubject})

	w := serve(s, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Counts models.DashboardCounts `json:"counts"`
		Usage  models.UsageSnapshot   `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Counts.Chats)
	assert.Equal(t, 1, body.Counts.ImageSearches)
	assert.Equal(t, 10, body.Usage.CreditsLimit)
}

func TestHistoryListsAreScopedToCaller(t *testing.T) {
	s, store := newTestServer(nil, nil)
	store.chats = append(store.chats,
		models.ChatHistory{ID: 1, UserID: "other", Message: "not mine"},
		models.ChatHistory{ID: 2, UserID: auth.LocalDevSubject, Message: "mine"},
	)

	w := serve(s, http.MethodGet, "/api/chat-history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mine")
	assert.NotContains(t, w.Body.String(), "not mine")

	w = serve(s, http.MethodGet, "/api/image-searches", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"searches":[]}`, w.Body.String())
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
