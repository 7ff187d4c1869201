package pyramid

import "github.com/golang/geo/r3"

// KeypointData is a single detected feature, per §3. XYZ and HasDepth are
// populated after depth assignment; before that XYZ is meaningless and
// HasDepth is false. Index is a caller-defined back-reference (e.g. the
// index into the raw FAST detection array before bucketing), used by
// callers that need to trace a bucketed keypoint back to its origin.
type KeypointData struct {
	U, V     float64
	Score    float64
	Level    int
	XYZ      r3.Vector
	HasDepth bool
	Index    int
}
