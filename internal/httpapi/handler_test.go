package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"live777go/internal/eventbus"
	"live777go/internal/stream"
	"live777go/pkg/config"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	bus := eventbus.New(cfg, "node-test", zap.NewNop())
	t.Cleanup(bus.Close)

	manager, err := stream.NewManager(stream.Config{
		AutoCreateWhip:   true,
		AutoCreateWhep:   true,
		AutoDeleteWhipMs: -1,
		AutoDeleteWhepMs: -1,
	}, bus, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	router := gin.New()
	NewHandler(manager, cfg, nil, bus, zap.NewNop()).SetupRoutes(router)
	return router
}

func TestWHIPRejectsEmptyBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/whip/room1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWHIPRejectsWrongMethod(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whip/room1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code) // only POST is registered for /whip/:stream
}

func TestWHEPOnUnknownStreamReturnsNotFoundWhenAutoCreateDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig()
	bus := eventbus.New(cfg, "node-test", zap.NewNop())
	defer bus.Close()

	manager, err := stream.NewManager(stream.Config{
		AutoCreateWhep:   false,
		AutoDeleteWhipMs: -1,
		AutoDeleteWhepMs: -1,
	}, bus, nil, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	router := gin.New()
	NewHandler(manager, cfg, nil, bus, zap.NewNop()).SetupRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/whep/missing", bytes.NewBufferString("v=0\r\n"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchSessionJSONChangeResourceOnUnknownSessionReturnsError(t *testing.T) {
	router := newTestRouter(t)

	body := bytes.NewBufferString(`{"kind":"video","enabled":false}`)
	req := httptest.NewRequest(http.MethodPatch, "/session/room1/sess1", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusNoContent, w.Code)
}

func TestPatchSessionJSONRejectsUnknownKind(t *testing.T) {
	router := newTestRouter(t)

	body := bytes.NewBufferString(`{"kind":"screen","enabled":true}`)
	req := httptest.NewRequest(http.MethodPatch, "/session/room1/sess1", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetLayerRequiresEncodingID(t *testing.T) {
	router := newTestRouter(t)

	body := bytes.NewBufferString(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/session/room1/sess1/layer", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetLayerOnUnknownStreamReturnsNotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/session/missing/sess1/layer", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminInfosEmptyBeforeAnyPublish(t *testing.T) {
	router := newTestRouter(t)

	// No WHIP/WHEP request has been made, so admin/infos reports zero
	// streams as an empty JSON list.
	req := httptest.NewRequest(http.MethodGet, "/admin/infos", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
