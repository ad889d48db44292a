package channel

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"

	"clipbot/internal/bus"
	"clipbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestWebhookRouter(secret string, q domain.MessageBus, metrics http.Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	w := NewWebhook(WebhookConfig{Secret: secret, Metrics: metrics, Logger: testLogger()})
	return w.Router(q)
}

const startUpdate = `{
	"update_id": 10,
	"message": {
		"message_id": 5,
		"date": 1700000000,
		"from": {"id": 42, "is_bot": false, "first_name": "A", "username": "alice"},
		"chat": {"id": 42, "type": "private"},
		"text": "https://youtu.be/abc123"
	}
}`

func TestWebhook_EnqueuesUpdate(t *testing.T) {
	q := bus.New(4, testLogger())
	defer q.Close()
	r := newTestWebhookRouter("s3cret", q, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/s3cret", strings.NewReader(startUpdate))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, 1, q.Len())

	msg := <-q.Subscribe()
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "https://youtu.be/abc123", msg.Text)
}

func TestWebhook_InvalidJSON(t *testing.T) {
	q := bus.New(4, testLogger())
	defer q.Close()
	r := newTestWebhookRouter("", q, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader("{not json"))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, q.Len())
}

func TestWebhook_IgnoredUpdateStillOK(t *testing.T) {
	q := bus.New(4, testLogger())
	defer q.Close()
	r := newTestWebhookRouter("", q, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{"update_id": 11}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, q.Len())
}

func TestWebhook_WrongSecretPath(t *testing.T) {
	q := bus.New(4, testLogger())
	defer q.Close()
	r := newTestWebhookRouter("s3cret", q, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(startUpdate))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, q.Len())
}

func TestWebhook_ClosedQueue(t *testing.T) {
	q := bus.New(4, testLogger())
	q.Close()
	r := newTestWebhookRouter("", q, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(startUpdate))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWebhook_Health(t *testing.T) {
	r := newTestWebhookRouter("", bus.New(1, testLogger()), nil)

	for path, body := range map[string]string{"/": healthText, "/healthz": "ok"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, body, w.Body.String())
	}
}

func TestWebhook_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("clipbot_uptime_seconds 1\n"))
	})
	r := newTestWebhookRouter("", bus.New(1, testLogger()), metrics)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "clipbot_uptime_seconds 1\n", w.Body.String())

	noMetrics := newTestWebhookRouter("", bus.New(1, testLogger()), nil)
	w = httptest.NewRecorder()
	noMetrics.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
