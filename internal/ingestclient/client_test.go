package ingestclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumangalagouda/DEV-HACK/internal/detect"
	"github.com/sumangalagouda/DEV-HACK/internal/livestatus"
)

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return New("http://api.test/", "anon-key", hc, 0)
}

func TestDetectSendsCredentials(t *testing.T) {
	c := newMockedClient(t)
	cam := "CAM-01"

	httpmock.RegisterResponder(http.MethodPost, "http://api.test/api/detect-ppe",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "anon-key", req.Header.Get("apikey"))
			assert.Equal(t, "Bearer anon-key", req.Header.Get("Authorization"))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"success":       true,
				"hasViolations": true,
				"message":       detect.MessageViolation,
				"detection":     map[string]interface{}{"id": "d1", "violationType": "No hard hat", "confidence": 85},
			})
		})

	res, err := c.Detect(context.Background(), detect.Request{ImageBase64: "aGk=", CameraID: &cam})
	require.NoError(t, err)
	assert.True(t, res.HasViolations)
	require.NotNil(t, res.Detection)
	assert.Equal(t, "No hard hat", res.Detection.ViolationType)
}

func TestDetectRemoteError(t *testing.T) {
	c := newMockedClient(t)

	httpmock.RegisterResponder(http.MethodPost, "http://api.test/api/detect-ppe",
		httpmock.NewStringResponder(http.StatusBadRequest,
			`{"success":false,"error":"Failed to save detection","errorKind":"persistence-error","details":"row-level security"}`))

	_, err := c.Detect(context.Background(), detect.Request{ImageBase64: "aGk="})
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.Equal(t, "persistence-error", re.ErrorKind)
	assert.Contains(t, err.Error(), "row-level security")
	assert.False(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&RemoteError{Status: http.StatusBadGateway}))
	assert.True(t, Retryable(&RemoteError{Status: http.StatusTooManyRequests}))
	assert.False(t, Retryable(&RemoteError{Status: http.StatusUnauthorized}))
	assert.True(t, Retryable(errors.New("connection refused")))
	assert.False(t, Retryable(nil))
}

func TestLatest(t *testing.T) {
	c := newMockedClient(t)
	detected := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	httpmock.RegisterResponder(http.MethodGet, "http://api.test/api/detections/latest",
		httpmock.NewStringResponder(http.StatusNotFound, `{"success":false,"error":"No detections yet"}`))
	httpmock.RegisterResponderWithQuery(http.MethodGet, "http://api.test/api/detections/latest", "cameraId=CAM-02",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
			"id": "d2", "cameraId": "CAM-02", "violationType": "No vest",
			"hasViolations": true, "detectedAt": detected,
			"camera": map[string]interface{}{"id": "CAM-02", "zone": "Zone B"},
		}))

	det, err := c.Latest(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, det)

	row, err := c.Fetcher().Latest(context.Background(), "CAM-02")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Zone B", row.Zone)
	assert.True(t, row.IsViolation())
	assert.True(t, row.DetectedAt.Equal(detected))

	var _ livestatus.Fetcher = c.Fetcher()
}
