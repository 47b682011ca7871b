package walk

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/inertial_walker/internal/orientation"
)

// Summary condenses a finished session for quick inspection in the archive.
// Optional fields are nil when the session has nothing to compute them from.
type Summary struct {
	DurationMs        int64    `json:"duration_ms"`
	StepCount         int      `json:"step_count"`
	DistanceM         float64  `json:"distance_m"`
	SampleCount       int      `json:"sample_count"`
	MeanHeadingDeg    *float64 `json:"mean_heading_deg"`
	AnchorsMarked     int      `json:"anchors_marked"`
	MeanAbsErrorDeg   *float64 `json:"mean_abs_heading_error_deg"`
	AbsErrorStdDevDeg *float64 `json:"abs_heading_error_stddev_deg"`
}

func summarize(startMs, endMs int64, steps int, distance float64, samples []SampleRecord, events Events) Summary {
	s := Summary{
		DurationMs:  endMs - startMs,
		StepCount:   steps,
		DistanceM:   distance,
		SampleCount: len(samples),
	}

	if len(samples) > 0 {
		rad := make([]float64, len(samples))
		for i, smp := range samples {
			rad[i] = orientation.DegToRad(smp.HeadingDeg)
		}
		// Headings live on a circle; an arithmetic mean of 359 and 1 would be 180.
		mean := orientation.Wrap360(orientation.RadToDeg(stat.CircularMean(rad, nil)))
		s.MeanHeadingDeg = &mean
	}

	var absErr []float64
	for _, a := range events.Anchors() {
		s.AnchorsMarked++
		if a.HeadingError != nil {
			absErr = append(absErr, math.Abs(*a.HeadingError))
		}
	}
	switch len(absErr) {
	case 0:
	case 1:
		m, sd := absErr[0], 0.0
		s.MeanAbsErrorDeg, s.AbsErrorStdDevDeg = &m, &sd
	default:
		m, sd := stat.MeanStdDev(absErr, nil)
		s.MeanAbsErrorDeg, s.AbsErrorStdDevDeg = &m, &sd
	}
	return s
}
