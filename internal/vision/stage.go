package vision

import "fmt"

// Print stages used to describe the expected visual state to the
// classifier. Early layers show sparse material; judging them is covered
// by the monitor's minimum-layer gate, not here.
type Stage int

const (
	StageEarly Stage = iota
	StageMid
	StageLate
)

func (s Stage) String() string {
	switch s {
	case StageEarly:
		return "early"
	case StageMid:
		return "mid"
	case StageLate:
		return "late"
	default:
		return "unknown"
	}
}

// StageFor buckets the print by layer and progress. Late overrides mid so
// a short print that jumps to high percent is still described as late.
func StageFor(layer, totalLayers, percent int) Stage {
	if percent >= 80 || (totalLayers > 0 && layer >= totalLayers*4/5) {
		return StageLate
	}
	if layer <= 5 && percent < 10 {
		return StageEarly
	}
	return StageMid
}

// StageContext renders the expected-state description handed to the
// classifier alongside the frame. The policy is deliberately strict:
// report failure only on high confidence, and treat purge/waste material
// anywhere on the plate as normal.
func StageContext(layer, totalLayers, percent int) string {
	stage := StageFor(layer, totalLayers, percent)

	var expected string
	switch stage {
	case StageEarly:
		expected = "Only the first few layers exist: expect thin outlines and sparse infill directly on the plate."
	case StageMid:
		expected = "The part is partially built: expect clean walls rising from the plate with visible infill."
	case StageLate:
		expected = "The part is nearly complete: expect a mostly finished object with closed top surfaces."
	}

	return fmt.Sprintf(
		"FDM print in progress, %s stage (layer %d of %d, %d%% complete). %s "+
			"Purge lines and small waste blobs are normal anywhere on the plate. "+
			"Report a failure only if at least 95%% confident you see spaghetti "+
			"(tangled extruded strands), detachment from the plate, or a large "+
			"blob fused to the nozzle.",
		stage, layer, totalLayers, percent, expected,
	)
}
