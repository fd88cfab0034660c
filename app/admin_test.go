package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"
	"github.com/mmayman666/Otouri-app-final-sub001/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func adminServer(t *testing.T) (*Server, *memStore) {
	t.Helper()
	s, store := newTestServer(nil, nil)
	store.profiles[auth.LocalDevSubject] = models.Profile{UserID: auth.LocalDevSubject, Email: "admin@otouri.test", IsAdmin: true}
	store.profiles["u2"] = models.Profile{UserID: "u2", Email: "buyer@otouri.test"}
	store.subs["u2"] = models.Subscription{UserID: "u2", Status: models.StatusPastDue, Plan: models.PlanPremium}
	store.ledgers["u2"] = models.UsageLedger{UserID: "u2", CreditsUsed: 3, CreditsLimit: models.UnlimitedCredits}
	return s, store
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s, _ := newTestServer(nil, nil)

	for _, path := range []string{"/api/admin/stats", "/api/admin/users", "/api/admin/subscriptions", "/api/admin/users/export"} {
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestAdminCheckFailure(t *testing.T) {
	s, store := adminServer(t)
	store.fail["GetProfile"] = true

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminStats(t *testing.T) {
	s, _ := adminServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.AdminStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.PremiumUsers)
	assert.Equal(t, 1, stats.PastDueSubscribers)
	assert.Equal(t, 3, stats.CreditsConsumed)
}

func TestAdminSubscriptionsFilter(t *testing.T) {
	s, store := adminServer(t)
	store.subs["u3"] = models.Subscription{UserID: "u3", Status: models.StatusCanceled, Plan: models.PlanFree}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/subscriptions?status=past_due", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Subscriptions []models.Subscription `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Subscriptions, 1)
	assert.Equal(t, "u2", body.Subscriptions[0].UserID)

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/subscriptions?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminExportUsers(t *testing.T) {
	s, _ := adminServer(t)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/users/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "otouri_users_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Email", rows[0][2])

	var buyer []string
	for _, r := range rows[1:] {
		if r[1] == "u2" {
			buyer = r
		}
	}
	require.NotNil(t, buyer)
	assert.Equal(t, "buyer@otouri.test", buyer[2])
	assert.Equal(t, "premium", buyer[5])
	assert.Equal(t, "unlimited", buyer[8])
}
