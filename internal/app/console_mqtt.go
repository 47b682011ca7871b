package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/inertial_walker/internal/config"
	"github.com/relabs-tech/inertial_walker/internal/walk"
)

// RunConsoleMQTT prints the walker's live status and every finished
// session summary until interrupted.
func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribe(client, cfg.TopicStatus, func(payload []byte) {
		st, err := decodeStatus(payload)
		if err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}
		printStatus(os.Stdout, st)
	}); err != nil {
		return err
	}

	if err := subscribe(client, cfg.TopicSession, func(payload []byte) {
		var rec walk.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			log.Printf("console: session unmarshal error: %v", err)
			return
		}
		printSession(os.Stdout, &rec)
	}); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("console: shutting down")
	return nil
}

func printStatus(w io.Writer, st walk.Status) {
	fmt.Fprintf(w,
		"[WALK] %-7s id=%s dir=%s steps=%d dist=%.2fm head=%.1f° acc=%s pos=(%.2f, %.2f, %d) samples=%d next=%s\n",
		st.State, st.SessionID, st.Direction, st.StepCount, st.DistanceM,
		st.HeadingDeg, st.Accuracy, st.X, st.Y, st.Z, st.Samples, st.NextAnchor,
	)
}

func printSession(w io.Writer, rec *walk.Record) {
	s := rec.Summary
	fmt.Fprintf(w, "[SESS] %s %s %s->%s steps=%d dist=%.2fm samples=%d anchors=%d\n",
		rec.SessionID, rec.Direction, rec.StartLabel, rec.EndLabel,
		s.StepCount, s.DistanceM, s.SampleCount, s.AnchorsMarked,
	)
	for _, a := range rec.Events.Anchors() {
		if a.HeadingError == nil {
			fmt.Fprintf(w, "[ANCH] %-4s measured=%.1f° (no reference)\n", a.Label, a.HeadingMeasured)
			continue
		}
		fmt.Fprintf(w, "[ANCH] %-4s measured=%.1f° expected=%.1f° error=%+.1f°\n",
			a.Label, a.HeadingMeasured, *a.HeadingExpected, *a.HeadingError)
	}
}
