package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmayman666/Otouri-app-final-sub001/app/models"
	"github.com/mmayman666/Otouri-app-final-sub001/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func imageRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "bottle.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/image-analysis", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const visionReply = "```json\n" + `{"perfumeName":"Aventus","brand":"Creed","type":"EDP","confidence":140,
"notes":["pineapple","birch"],"description":"Fruity chypre","occasions":["office"],
"longevity":"long","sillage":"strong","gender":"male","price_range":"$$$",
"similar":[{"name":"Club de Nuit Intense","brand":"Armaf","similarity":88.4,"price":"$","image":""}]}` + "\n```"

func TestImageAnalysisSuccess(t *testing.T) {
	assistant := &fakeAssistant{vision: visionReply}
	s, store := newTestServer(assistant, nil)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, imageRequest(t, "image", pngBytes))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.PerfumeAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Aventus", got.PerfumeName)
	assert.Equal(t, "Creed", got.Brand)
	assert.Equal(t, float64(100), got.Confidence)
	assert.Equal(t, float64(88), got.Similar[0].Similarity)
	assert.Equal(t, "9", w.Header().Get("X-Remaining-Credits"))

	require.Len(t, store.searches, 1)
	assert.Equal(t, "Aventus", store.searches[0].PerfumeName)
	assert.Equal(t, 1, store.ledgers[auth.LocalDevSubject].CreditsUsed)
}

func TestImageAnalysisFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"prose", "I think this is probably a Dior perfume."},
		{"broken json", `{"perfumeName": "Aventus", "confidence": }`},
		{"empty name", `{"perfumeName": "  ", "confidence": 80}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newTestServer(&fakeAssistant{vision: tt.reply}, nil)

			w := httptest.NewRecorder()
			s.Router().ServeHTTP(w, imageRequest(t, "image", pngBytes))
			require.Equal(t, http.StatusOK, w.Code)

			var got models.PerfumeAnalysis
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, fallbackAnalysis(), got)
			assert.Equal(t, float64(50), got.Confidence)
			assert.Len(t, store.searches, 1)
		})
	}
}

func TestImageAnalysisMissingImage(t *testing.T) {
	assistant := &fakeAssistant{vision: visionReply}
	s, store := newTestServer(assistant, nil)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, imageRequest(t, "file", pngBytes))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, assistant.visionCalls)
	assert.Zero(t, store.ledgers[auth.LocalDevSubject].CreditsUsed)
}

func TestImageAnalysisRejectsNonImage(t *testing.T) {
	assistant := &fakeAssistant{vision: visionReply}
	s, _ := newTestServer(assistant, nil)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, imageRequest(t, "image", []byte("just some text, not a picture")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, assistant.visionCalls)
}

func TestImageAnalysisCreditLimit(t *testing.T) {
	assistant := &fakeAssistant{vision: visionReply}
	s, store := newTestServer(assistant, nil)
	store.ledgers[auth.LocalDevSubject] = models.UsageLedger{UserID: auth.LocalDevSubject, CreditsUsed: 10, CreditsLimit: 10}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, imageRequest(t, "image", pngBytes))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["remainingCredits"])
	assert.Equal(t, string(ReasonLimitExceeded), body["reason"])
	assert.Zero(t, assistant.visionCalls)
}

func TestImageAnalysisProviderFailureRefunds(t *testing.T) {
	assistant := &fakeAssistant{visionErr: errors.New("upstream 503")}
	s, store := newTestServer(assistant, nil)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, imageRequest(t, "image", pngBytes))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "upstream 503")
	assert.Zero(t, store.ledgers[auth.LocalDevSubject].CreditsUsed)
	assert.Empty(t, store.searches)
}

func TestImageAnalysisUnconfigured(t *testing.T) {
	s, _ := newTestServer(nil, nil)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, imageRequest(t, "image", pngBytes))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestParsePerfumeAnalysisDefaults(t *testing.T) {
	got, err := parsePerfumeAnalysis(`Here you go: {"perfumeName":"Sauvage","confidence":-5}`)
	require.NoError(t, err)
	assert.Equal(t, "Sauvage", got.PerfumeName)
	assert.Zero(t, got.Confidence)
	assert.NotNil(t, got.Notes)
	assert.NotNil(t, got.Occasions)
	assert.NotNil(t, got.Similar)
}
