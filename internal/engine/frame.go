package engine

import "time"

const maxFixedAlpha = 0.999999

// Frame is the timing snapshot handed to every hook of one step. During
// fixed passes FixedSteps counts the passes run so far in this step; in
// Update and Render it is the total for the step.
type Frame struct {
	Index      uint64  `json:"index"`
	DT         float64 `json:"dt"`
	FixedDT    float64 `json:"fixedDt"`
	FixedAlpha float64 `json:"fixedAlpha"`
	FixedSteps uint32  `json:"fixedSteps"`
}

func newFrame(index uint64, dt, fixedDT, acc time.Duration, steps uint32) Frame {
	alpha := 0.0
	if fixedDT > 0 {
		alpha = float64(acc) / float64(fixedDT)
	}
	if alpha < 0 {
		alpha = 0
	} else if alpha > maxFixedAlpha {
		alpha = maxFixedAlpha
	}
	return Frame{
		Index:      index,
		DT:         dt.Seconds(),
		FixedDT:    fixedDT.Seconds(),
		FixedAlpha: alpha,
		FixedSteps: steps,
	}
}
