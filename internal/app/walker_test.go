package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_walker/internal/anchor"
	"github.com/relabs-tech/inertial_walker/internal/config"
	"github.com/relabs-tech/inertial_walker/internal/pdr"
	"github.com/relabs-tech/inertial_walker/internal/radio"
)

func TestWalkConfig(t *testing.T) {
	cfg := config.Default()
	cfg.StepLengthM = 0.68
	cfg.StepCooldownMS = 300
	cfg.TickIntervalMS = 500
	cfg.ScanTimeoutMS = 400
	cfg.OriginX, cfg.OriginY, cfg.OriginZ = 1.0154, 4.6353, 1

	wc := walkConfig(cfg)
	assert.Equal(t, 0.68, wc.StepLength)
	assert.Equal(t, 300*time.Millisecond, wc.Step.Cooldown)
	assert.Equal(t, cfg.StepHighThreshold, wc.Step.HighThreshold)
	assert.Equal(t, 500*time.Millisecond, wc.TickInterval)
	assert.Equal(t, 400*time.Millisecond, wc.ScanTimeout)
	assert.Equal(t, pdr.Position{X: 1.0154, Y: 4.6353, Z: 1}, wc.Origin)
	assert.Equal(t, cfg.Anchors, wc.Anchors)
	assert.Equal(t, "C4", wc.StartLabel)
	assert.Equal(t, "C14", wc.EndLabel)
}

func TestRadioScanner_LocalSources(t *testing.T) {
	cfg := config.Default()

	cfg.RadioSource = config.RadioSourceNone
	s, err := radioScanner(cfg, nil)
	require.NoError(t, err)
	readings, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, readings)

	cfg.RadioSource = config.RadioSourceIW
	cfg.RadioIface = "wlan1"
	s, err = radioScanner(cfg, nil)
	require.NoError(t, err)
	iw, ok := s.(*radio.IWScanner)
	require.True(t, ok)
	assert.Equal(t, "wlan1", iw.Iface)
}

func TestSurveyRoute(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, cfg.Anchors, surveyRoute(cfg))

	cfg.SurveyPoints = []anchor.Anchor{{Label: "1-01", X: 1}}
	assert.Equal(t, cfg.SurveyPoints, surveyRoute(cfg))
}
