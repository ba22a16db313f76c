package alert

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skywatch/skywatch-go/internal/datastore"
)

// payload is the wire form of a detection sent to webhook and MQTT channels.
type payload struct {
	ID         uint              `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Class      string            `json:"class"`
	Species    string            `json:"species,omitempty"`
	Confidence float64           `json:"confidence"`
	Box        [4]int            `json:"box"`
	Polygon    []datastore.Point `json:"polygon,omitempty"`
}

func buildPayload(d *datastore.Detection) ([]byte, error) {
	points, err := d.PolygonPoints()
	if err != nil {
		points = nil
	}
	return json.Marshal(payload{
		ID:         d.ID,
		Timestamp:  d.Timestamp,
		Class:      d.ClassLabel,
		Species:    d.SpeciesLabel,
		Confidence: d.Confidence,
		Box:        [4]int{d.X1, d.Y1, d.X2, d.Y2},
		Polygon:    points,
	})
}

// alertTitle and alertMessage build the human readable notification text.
func alertTitle(d *datastore.Detection) string {
	return fmt.Sprintf("%s detected", titleCase(d.ClassLabel))
}

func alertMessage(d *datastore.Detection) string {
	subject := d.ClassLabel
	if d.SpeciesLabel != "" {
		subject = fmt.Sprintf("%s (%s)", d.ClassLabel, d.SpeciesLabel)
	}
	return fmt.Sprintf("%s detected with %.0f%% confidence at %s",
		titleCase(subject), d.Confidence*100, d.Timestamp.Format("15:04:05"))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
