// model.go data model for persisted detections
package datastore

import (
	"encoding/json"
	"time"
)

// Point is one vertex of a segmentation outline in image pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Detection is one stored observation of an object of interest.
// IDs are assigned by the store on insert and are never reused, even after
// pruning, so external references stay stable until pruned.
type Detection struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp    time.Time `gorm:"index:idx_detections_timestamp" json:"timestamp"`
	Confidence   float64   `json:"confidence"`
	ClassLabel   string    `gorm:"index:idx_detections_class" json:"classLabel"`
	SpeciesLabel string    `json:"speciesLabel,omitempty"`
	X1           int       `json:"x1"`
	Y1           int       `json:"y1"`
	X2           int       `json:"x2"`
	Y2           int       `json:"y2"`
	Polygon      string    `json:"-"` // JSON encoded []Point, empty if unavailable
	SnapshotPath string    `json:"-"` // blob file name relative to the snapshot dir, owned by the store
}

// SetPolygon stores the outline as JSON. An empty slice clears it.
func (d *Detection) SetPolygon(points []Point) error {
	if len(points) == 0 {
		d.Polygon = ""
		return nil
	}
	data, err := json.Marshal(points)
	if err != nil {
		return err
	}
	d.Polygon = string(data)
	return nil
}

// PolygonPoints decodes the stored outline, nil if none was recorded.
func (d *Detection) PolygonPoints() ([]Point, error) {
	if d.Polygon == "" {
		return nil, nil
	}
	var points []Point
	if err := json.Unmarshal([]byte(d.Polygon), &points); err != nil {
		return nil, err
	}
	return points, nil
}
