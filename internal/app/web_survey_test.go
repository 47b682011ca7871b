package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_walker/internal/anchor"
	"github.com/relabs-tech/inertial_walker/internal/radio"
	"github.com/relabs-tech/inertial_walker/internal/storage"
	"github.com/relabs-tech/inertial_walker/internal/survey"
	"github.com/relabs-tech/inertial_walker/internal/timeutil"
	"github.com/relabs-tech/inertial_walker/internal/walk"
)

var testSurveyRoute = []anchor.Anchor{
	{Label: "1-01", X: 1.0, Y: 0.0},
	{Label: "1-02", X: 0.1, Y: 1.0},
}

func newSurveyAPI(t *testing.T, readings []radio.Reading) *httptest.Server {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC))
	ctrl := walk.NewController(walk.DefaultConfig(), walk.Options{
		Clock: clock,
		Logf:  func(string, ...interface{}) {},
	})
	scanner := radio.NewBounded(radio.ScannerFunc(func(context.Context) ([]radio.Reading, error) {
		return readings, nil
	}), time.Second)
	scanner.Logf = func(string, ...interface{}) {}
	store, err := storage.OpenStore(filepath.Join(t.TempDir(), "walks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	api := newWalkAPI(ctrl)
	api.survey = survey.New(testSurveyRoute, 1, scanner, store, clock)
	srv := httptest.NewServer(api.routes())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestWalkAPI_FingerprintSurvey(t *testing.T) {
	ap := radio.Reading{SSID: "eduroam", BSSID: "00:1a:2b:3c:4d:5e", RSSI: -47}
	srv := newSurveyAPI(t, []radio.Reading{ap})

	var point survey.Point
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/survey", &point))
	assert.Equal(t, survey.Point{Label: "1-01", X: 1.0, Y: 0.0, Z: 1, Facing: "N"}, point)

	var captured fingerprintResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/fingerprint", &captured))
	assert.Equal(t, "1-01", captured.Fingerprint.Label)
	assert.Equal(t, []radio.Reading{ap}, captured.Fingerprint.WifiData)
	require.NotNil(t, captured.Next)
	assert.Equal(t, "1-02", captured.Next.Label)

	var adhoc fingerprintResponse
	require.Equal(t, http.StatusOK,
		doJSON(t, http.MethodPost, srv.URL+"/api/fingerprint?label=elevator&x=3.3&y=3.9&z=2", &adhoc))
	assert.Equal(t, "elevator", adhoc.Fingerprint.Label)
	assert.Equal(t, 2, adhoc.Fingerprint.Z)
	assert.Nil(t, adhoc.Next)

	var flag survey.Fingerprint
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/fingerprint/flag", &flag))
	assert.Equal(t, "flag1", flag.Label)

	var all []survey.Fingerprint
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/fingerprints", &all))
	require.Len(t, all, 3)
	assert.Equal(t, []string{"1-01", "elevator", "flag1"}, []string{all[0].Label, all[1].Label, all[2].Label})

	var cleared clearResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodDelete, srv.URL+"/api/fingerprints", &cleared))
	assert.Equal(t, 3, cleared.Deleted)
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/fingerprints", &all))
	assert.Empty(t, all)
}

func TestWalkAPI_FingerprintErrors(t *testing.T) {
	srv := newSurveyAPI(t, nil)
	var body errorResponse

	assert.Equal(t, http.StatusUnprocessableEntity, doJSON(t, http.MethodPost, srv.URL+"/api/fingerprint", &body))
	assert.Equal(t, survey.ErrNoReadings.Error(), body.Error)

	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, srv.URL+"/api/fingerprint?label=lobby", &body))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, srv.URL+"/api/survey/select?label=lobby", &body))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/api/fingerprint?x=1&y=oops&label=a", &body))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, srv.URL+"/api/fingerprint?x=1&y=2", &body))

	var point survey.Point
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/survey/select?label=1-02", &point))
	assert.Equal(t, "1-02", point.Label)
}

func TestWalkAPI_SurveyRoutesOffWithoutSurvey(t *testing.T) {
	_, srv := newTestAPI(t)
	resp, err := http.Get(srv.URL + "/api/fingerprints")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
