package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sumangalagouda/DEV-HACK/internal/analysis"
	"github.com/sumangalagouda/DEV-HACK/internal/config"
	"github.com/sumangalagouda/DEV-HACK/internal/credentials"
	"github.com/sumangalagouda/DEV-HACK/internal/database"
	"github.com/sumangalagouda/DEV-HACK/internal/detect"
	"github.com/sumangalagouda/DEV-HACK/internal/imagestore"
	"github.com/sumangalagouda/DEV-HACK/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	store  *database.Store
	h      *Handlers
}

func newTestEnv(t *testing.T, auth config.AuthConfig) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	store := database.NewStore(db, time.Second, false)

	images, err := imagestore.NewLocalStore(t.TempDir(), "http://localhost:3001")
	require.NoError(t, err)

	chain := analysis.NewChain(zap.NewNop(), analysis.Precomputed{}, analysis.Placeholder{})
	pipeline := detect.NewPipeline(store, chain, images, zap.NewNop())
	h := New(pipeline, store, credentials.NewResolver(auth), zap.NewNop())

	return &testEnv{router: NewRouter(h, RouterOptions{}), store: store, h: h}
}

func (e *testEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

var anonAuth = config.AuthConfig{AnonKey: "anon-key"}

var frame = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("frame"))

func TestDetectPPEPrecomputed(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]interface{}
		cameraID interface{}
		vtype    string
	}{
		{
			name: "with_camera",
			body: map[string]interface{}{
				"imageBase64": frame, "cameraId": "CAM-01", "violationType": "No hard hat", "severity": "high",
			},
			cameraID: "CAM-01",
			vtype:    "No hard hat",
		},
		{
			name: "null_camera",
			body: map[string]interface{}{
				"imageBase64": frame, "cameraId": nil, "violationType": "Missing hard hat", "severity": "high",
			},
			cameraID: nil,
			vtype:    "Missing hard hat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, anonAuth)

			w := env.do(http.MethodPost, "/api/detect-ppe", tt.body, map[string]string{"Origin": "http://dashboard.test"})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

			var res struct {
				Success       bool                   `json:"success"`
				HasViolations bool                   `json:"hasViolations"`
				Message       string                 `json:"message"`
				Detection     map[string]interface{} `json:"detection"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.True(t, res.Success)
			assert.True(t, res.HasViolations)
			assert.Equal(t, "Safety violation detected!", res.Message)
			assert.Equal(t, tt.cameraID, res.Detection["cameraId"])
			assert.Equal(t, tt.vtype, res.Detection["violationType"])
			assert.Equal(t, "high", res.Detection["severity"])
			assert.Equal(t, float64(85), res.Detection["confidence"])
			assert.Contains(t, res.Detection["imageUrl"], "http://localhost:3001/uploads/")
		})
	}
}

func TestDetectPPELegacyPath(t *testing.T) {
	env := newTestEnv(t, anonAuth)

	w := env.do(http.MethodPost, "/functions/v1/detect-ppe", map[string]interface{}{"imageBase64": frame}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res detect.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.HasViolations)
	assert.Equal(t, "No violations detected - all safety protocols followed", res.Message)
}

func TestDetectPPEMissingImage(t *testing.T) {
	// No credentials configured: the image check must still come first
	env := newTestEnv(t, config.AuthConfig{})

	w := env.do(http.MethodPost, "/api/detect-ppe", map[string]interface{}{"cameraId": "CAM-01"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body failureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "No image data provided", body.Error)
	assert.Equal(t, string(detect.KindClient), body.ErrorKind)
}

func TestDetectPPEMissingCredential(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{})

	w := env.do(http.MethodPost, "/api/detect-ppe", map[string]interface{}{"imageBase64": frame}, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body failureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "API key missing", body.Error)
	assert.Equal(t, string(detect.KindConfiguration), body.ErrorKind)
}

func TestDetectPPEInvalidToken(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{JWTSecret: "secret"})

	w := env.do(http.MethodPost, "/api/detect-ppe", map[string]interface{}{"imageBase64": frame},
		map[string]string{"Authorization": "Bearer not.a.token"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDetectPPEMalformedBody(t *testing.T) {
	env := newTestEnv(t, anonAuth)

	req := httptest.NewRequest(http.MethodPost, "/api/detect-ppe", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t, anonAuth)

	w := env.do(http.MethodOptions, "/api/detect-ppe", nil, map[string]string{
		"Origin":                        "http://dashboard.test",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Apikey")

	w = env.do(http.MethodOptions, "/functions/v1/detect-ppe", nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDashboardEndpoints(t *testing.T) {
	env := newTestEnv(t, anonAuth)

	w := env.do(http.MethodGet, "/api/detections/latest", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, v := range []string{"No vest", "Missing helmet"} {
		w = env.do(http.MethodPost, "/api/detect-ppe", map[string]interface{}{
			"imageBase64": frame, "cameraId": "CAM-09", "violationType": v,
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = env.do(http.MethodGet, "/api/detections/recent?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recent struct {
		Detections []models.Detection `json:"detections"`
		Count      int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recent))
	assert.Equal(t, 1, recent.Count)

	w = env.do(http.MethodGet, "/api/detections/stats", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		SafetyScore     int   `json:"safetyScore"`
		ViolationsToday int64 `json:"violationsToday"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.ViolationsToday)
	assert.Equal(t, 90, stats.SafetyScore)

	w = env.do(http.MethodGet, "/api/cameras", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Camera CAM-09")

	w = env.do(http.MethodGet, "/api/detections/recent?limit=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Hour})

	hash, err := credentials.HashPassword("s3cret")
	require.NoError(t, err)
	require.NoError(t, env.store.UpsertSupervisor(context.Background(), &models.Supervisor{
		Username: "maya", PasswordHash: hash, Role: "supervisor", AssignedZones: []string{"Zone A"},
	}))

	w := env.do(http.MethodPost, "/api/auth/login", LoginRequest{Username: "maya", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", LoginRequest{Username: "maya", Password: "s3cret"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, []string{"Zone A"}, resp.User.AssignedZones)
	assert.NotContains(t, w.Body.String(), hash)

	// The issued token works as a credential
	w = env.do(http.MethodGet, "/api/cameras", nil, map[string]string{"Authorization": "Bearer " + resp.Token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPanicRendersEnvelope(t *testing.T) {
	env := newTestEnv(t, anonAuth)
	env.router.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := env.do(http.MethodGet, "/boom", nil, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(detect.KindInternal))
}
