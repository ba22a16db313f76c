// Package inference wraps the object detection model behind a narrow
// adapter interface. The adapter owns model warmup but applies no confidence
// filtering, thresholding is the orchestrator's decision.
package inference

import (
	"context"

	"github.com/skywatch/skywatch-go/internal/frame"
)

// Point is one vertex of a segmentation outline in image pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// RawDetection is one unfiltered model result for a single frame.
type RawDetection struct {
	Label      string  // class label, e.g. "bird", "raptor"
	Species    string  // optional, set only if a secondary classifier ran
	Confidence float64 // in [0,1]
	Box        [4]int  // x1, y1, x2, y2 in image pixels, x1<x2 and y1<y2
	Polygon    []Point // optional segmentation outline
}

// Area returns the bounding box area in pixels.
func (d *RawDetection) Area() int {
	return (d.Box[2] - d.Box[0]) * (d.Box[3] - d.Box[1])
}

// Adapter is the model capability consumed by the orchestrator.
// Infer must not mutate shared orchestration state, all side effects belong
// to the caller.
type Adapter interface {
	Warmup(ctx context.Context, passes int) error
	Infer(ctx context.Context, f *frame.Frame) ([]RawDetection, error)
}
