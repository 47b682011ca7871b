// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_walker/internal/orientation"
	"github.com/relabs-tech/inertial_walker/internal/survey"
	"github.com/relabs-tech/inertial_walker/internal/walk"
)

// persistTimeout bounds how long a stop request waits on the sinks.
const persistTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // operator UI is served from the rig's own network
	},
}

// walkAPI is the operator control surface over a walk controller.
type walkAPI struct {
	ctrl           *walk.Controller
	survey         *survey.Survey // nil disables the fingerprint survey routes
	statusInterval time.Duration
}

func newWalkAPI(ctrl *walk.Controller) *walkAPI {
	return &walkAPI{ctrl: ctrl, statusInterval: time.Second}
}

func (a *walkAPI) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/walk/start", a.handleStart)
	mux.HandleFunc("POST /api/walk/stop", a.handleStop)
	mux.HandleFunc("POST /api/walk/anchor", a.handleAnchor)
	mux.HandleFunc("GET /api/walk/status", a.handleStatus)
	mux.HandleFunc("POST /api/heading/zero", a.handleZero)
	mux.HandleFunc("POST /api/heading/offset", a.handleOffset)
	mux.HandleFunc("POST /api/heading/override", a.handleOverride)
	mux.HandleFunc("POST /api/position/reset", a.handleResetPosition)
	mux.HandleFunc("GET /ws", a.handleWS)
	if a.survey != nil {
		mux.HandleFunc("GET /api/survey", a.handleSurveyPoint)
		mux.HandleFunc("POST /api/survey/select", a.handleSurveySelect)
		mux.HandleFunc("POST /api/fingerprint", a.handleFingerprint)
		mux.HandleFunc("POST /api/fingerprint/flag", a.handleFlag)
		mux.HandleFunc("GET /api/fingerprints", a.handleListFingerprints)
		mux.HandleFunc("DELETE /api/fingerprints", a.handleClearFingerprints)
	}
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

type stopResponse struct {
	SessionID string       `json:"session_id"`
	Samples   int          `json:"samples"`
	Summary   walk.Summary `json:"summary"`
	Error     string       `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (a *walkAPI) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.Start(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, a.ctrl.Status())
}

func (a *walkAPI) handleStop(w http.ResponseWriter, r *http.Request) {
	// The record must land even if the operator's client hangs up.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), persistTimeout)
	defer cancel()
	rec, err := a.ctrl.Stop(ctx)
	if errors.Is(err, walk.ErrNotWalking) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := stopResponse{SessionID: rec.SessionID, Samples: len(rec.Samples), Summary: rec.Summary}
	if err != nil {
		// The walk is over either way; report that the record did not land.
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *walkAPI) handleAnchor(w http.ResponseWriter, r *http.Request) {
	ev, err := a.ctrl.MarkAnchor()
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *walkAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ctrl.Status())
}

func (a *walkAPI) handleZero(w http.ResponseWriter, r *http.Request) {
	a.ctrl.Zero()
	writeJSON(w, http.StatusOK, a.ctrl.Status())
}

func (a *walkAPI) handleOffset(w http.ResponseWriter, r *http.Request) {
	delta, err := strconv.ParseFloat(r.URL.Query().Get("delta"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("delta must be a number of degrees"))
		return
	}
	a.ctrl.AddOffset(delta)
	writeJSON(w, http.StatusOK, a.ctrl.Status())
}

func (a *walkAPI) handleOverride(w http.ResponseWriter, r *http.Request) {
	v, err := orientation.ParseManualHeading(r.URL.Query().Get("value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.ctrl.SetManualOverride(v)
	writeJSON(w, http.StatusOK, a.ctrl.Status())
}

func (a *walkAPI) handleResetPosition(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	z := 0
	var errZ error
	if s := q.Get("z"); s != "" {
		z, errZ = strconv.Atoi(s)
	}
	if err := errors.Join(errX, errY, errZ); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("x and y must be numbers, z an integer floor"))
		return
	}
	a.ctrl.ResetPosition(x, y, z)
	writeJSON(w, http.StatusOK, a.ctrl.Status())
}

// handleWS pushes the live status once per statusInterval until the
// client goes away.
func (a *walkAPI) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(a.statusInterval)
	defer ticker.Stop()
	for {
		if err := conn.WriteJSON(a.ctrl.Status()); err != nil {
			log.Printf("web: websocket write error: %v", err)
			return
		}
		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

type fingerprintResponse struct {
	Fingerprint *survey.Fingerprint `json:"fingerprint"`
	Next        *survey.Point       `json:"next,omitempty"`
}

type clearResponse struct {
	Deleted int `json:"deleted"`
}

func surveyStatus(err error) int {
	switch {
	case errors.Is(err, survey.ErrNoRoute), errors.Is(err, survey.ErrUnknownPoint):
		return http.StatusNotFound
	case errors.Is(err, survey.ErrNoReadings):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (a *walkAPI) handleSurveyPoint(w http.ResponseWriter, r *http.Request) {
	p, err := a.survey.Current()
	if err != nil {
		writeError(w, surveyStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *walkAPI) handleSurveySelect(w http.ResponseWriter, r *http.Request) {
	p, err := a.survey.Select(r.URL.Query().Get("label"))
	if err != nil {
		writeError(w, surveyStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleFingerprint scans at the current survey point, or at the ad hoc
// position given by label, x, y and optionally z.
func (a *walkAPI) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("x") || q.Has("y") {
		x, errX := strconv.ParseFloat(q.Get("x"), 64)
		y, errY := strconv.ParseFloat(q.Get("y"), 64)
		z := 0
		var errZ error
		if s := q.Get("z"); s != "" {
			z, errZ = strconv.Atoi(s)
		}
		if err := errors.Join(errX, errY, errZ); err != nil || q.Get("label") == "" {
			writeError(w, http.StatusBadRequest, errors.New("label, x and y are required together, z is an integer floor"))
			return
		}
		fp, err := a.survey.CaptureAt(r.Context(), q.Get("label"), x, y, z)
		if err != nil {
			writeError(w, surveyStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, fingerprintResponse{Fingerprint: fp})
		return
	}

	if label := q.Get("label"); label != "" {
		if _, err := a.survey.Select(label); err != nil {
			writeError(w, surveyStatus(err), err)
			return
		}
	}
	fp, next, err := a.survey.Capture(r.Context())
	if err != nil {
		writeError(w, surveyStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, fingerprintResponse{Fingerprint: fp, Next: &next})
}

func (a *walkAPI) handleFlag(w http.ResponseWriter, r *http.Request) {
	fp, err := a.survey.Flag(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

func (a *walkAPI) handleListFingerprints(w http.ResponseWriter, r *http.Request) {
	fps, err := a.survey.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, fps)
}

func (a *walkAPI) handleClearFingerprints(w http.ResponseWriter, r *http.Request) {
	n, err := a.survey.Clear(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Deleted: n})
}
