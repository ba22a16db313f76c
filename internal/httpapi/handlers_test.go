package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch-go/internal/datastore"
	"github.com/skywatch/skywatch-go/internal/errors"
	"github.com/skywatch/skywatch-go/internal/orchestrator"
)

// stubController serves canned data to the handlers.
type stubController struct {
	status     orchestrator.Status
	detections []datastore.Detection
	snapshot   []byte
	testErr    error
	restarts   int

	lastLimit  int
	lastOffset int
	lastFilter *datastore.Filter
	lastTest   string
}

func (s *stubController) GetStatus() orchestrator.Status { return s.status }

func (s *stubController) ListDetections(limit, offset int, filter *datastore.Filter) ([]datastore.Detection, error) {
	s.lastLimit, s.lastOffset, s.lastFilter = limit, offset, filter
	return s.detections, nil
}

func (s *stubController) GetDetection(id uint) (*datastore.Detection, error) {
	for i := range s.detections {
		if s.detections[i].ID == id {
			return &s.detections[i], nil
		}
	}
	return nil, datastore.ErrNotFound
}

func (s *stubController) GetSnapshot(id uint) ([]byte, error) {
	if s.snapshot == nil {
		return nil, datastore.ErrNotFound
	}
	return s.snapshot, nil
}

func (s *stubController) TriggerTest(ctx context.Context, component string) error {
	s.lastTest = component
	return s.testErr
}

func (s *stubController) RequestRestart() { s.restarts++ }

func newTestServer(ctrl *stubController) *Server {
	return New(ctrl, nil)
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := &stubController{status: orchestrator.Status{
		State:         "running",
		CameraHealthy: true,
		ConfigValid:   true,
	}}
	rec := doRequest(newTestServer(ctrl), http.MethodGet, "/api/v1/status")

	require.Equal(t, http.StatusOK, rec.Code)
	var got orchestrator.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "running", got.State)
	assert.True(t, got.CameraHealthy)
}

func TestListDetectionsPassesQueryParams(t *testing.T) {
	ctrl := &stubController{detections: []datastore.Detection{
		{ID: 2, ClassLabel: "raptor", Timestamp: time.Now().UTC()},
		{ID: 1, ClassLabel: "raptor", Timestamp: time.Now().UTC()},
	}}
	rec := doRequest(newTestServer(ctrl), http.MethodGet, "/api/v1/detections?limit=10&offset=5&class=raptor")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, ctrl.lastLimit)
	assert.Equal(t, 5, ctrl.lastOffset)
	require.NotNil(t, ctrl.lastFilter)
	assert.Equal(t, "raptor", ctrl.lastFilter.Class)

	var got []datastore.Detection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestListDetectionsLimitClamped(t *testing.T) {
	ctrl := &stubController{}
	rec := doRequest(newTestServer(ctrl), http.MethodGet, "/api/v1/detections?limit=99999")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxListLimit, ctrl.lastLimit)
}

func TestListDetectionsBadLimit(t *testing.T) {
	rec := doRequest(newTestServer(&stubController{}), http.MethodGet, "/api/v1/detections?limit=banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDetectionNotFound(t *testing.T) {
	rec := doRequest(newTestServer(&stubController{}), http.MethodGet, "/api/v1/detections/42")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDetectionBadID(t *testing.T) {
	rec := doRequest(newTestServer(&stubController{}), http.MethodGet, "/api/v1/detections/zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSnapshotServesJPEG(t *testing.T) {
	ctrl := &stubController{
		detections: []datastore.Detection{{ID: 1}},
		snapshot:   []byte{0xFF, 0xD8, 0xFF, 0xD9},
	}
	rec := doRequest(newTestServer(ctrl), http.MethodGet, "/api/v1/detections/1/snapshot")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xD9}, rec.Body.Bytes())
}

func TestControlTest(t *testing.T) {
	ctrl := &stubController{}
	rec := doRequest(newTestServer(ctrl), http.MethodPost, "/api/v1/control/test/camera")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "camera", ctrl.lastTest)
}

func TestControlTestUnknownComponent(t *testing.T) {
	ctrl := &stubController{testErr: errors.Newf("unknown test component").
		Category(errors.CategoryValidation).Build()}
	rec := doRequest(newTestServer(ctrl), http.MethodPost, "/api/v1/control/test/nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControlTestComponentFailure(t *testing.T) {
	ctrl := &stubController{testErr: errors.Newf("camera unreachable").
		Category(errors.CategoryCamera).Build()}
	rec := doRequest(newTestServer(ctrl), http.MethodPost, "/api/v1/control/test/camera")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestControlRestart(t *testing.T) {
	ctrl := &stubController{}
	rec := doRequest(newTestServer(ctrl), http.MethodPost, "/api/v1/control/restart")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, ctrl.restarts)
}
