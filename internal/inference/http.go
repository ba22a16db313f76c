package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/errors"
	"github.com/skywatch/skywatch-go/internal/frame"
	"github.com/skywatch/skywatch-go/internal/logging"
)

// HTTPAdapter talks to a model server over HTTP: one POST with the JPEG
// frame body, one JSON response with raw detections.
type HTTPAdapter struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// detectResponse is the model server's wire format.
type detectResponse struct {
	Detections []struct {
		Label      string  `json:"label"`
		Species    string  `json:"species,omitempty"`
		Confidence float64 `json:"confidence"`
		Box        [4]int  `json:"box"`
		Polygon    []Point `json:"polygon,omitempty"`
	} `json:"detections"`
}

// NewHTTPAdapter creates an adapter for the configured model server.
func NewHTTPAdapter(settings conf.InferenceSettings) *HTTPAdapter {
	log := logging.ForService("inference")
	if log == nil {
		log = slog.Default()
	}
	return &HTTPAdapter{
		baseURL: strings.TrimRight(settings.URL, "/"),
		client: &http.Client{
			Timeout: time.Duration(settings.Timeout) * time.Second,
		},
		log: log,
	}
}

// Warmup runs synthetic inference passes to force model and accelerator
// initialization before the loop serves real frames. Failures are reported
// to the caller, which logs them and proceeds, warmup is never fatal.
func (a *HTTPAdapter) Warmup(ctx context.Context, passes int) error {
	if passes <= 0 {
		return nil
	}

	synthetic, err := syntheticJPEG()
	if err != nil {
		return errors.New(fmt.Errorf("encoding warmup frame: %w", err)).
			Component("inference").
			Category(errors.CategoryInference).
			Build()
	}

	for i := 0; i < passes; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := a.post(ctx, synthetic); err != nil {
			return errors.New(fmt.Errorf("warmup pass %d: %w", i+1, err)).
				Component("inference").
				Category(errors.CategoryInference).
				Build()
		}
	}
	return nil
}

// Infer runs the model on one frame and returns all raw detections without
// confidence filtering.
func (a *HTTPAdapter) Infer(ctx context.Context, f *frame.Frame) ([]RawDetection, error) {
	body, err := a.post(ctx, f.Data)
	if err != nil {
		return nil, errors.New(fmt.Errorf("model request failed: %w", err)).
			Component("inference").
			Category(errors.CategoryInference).
			Build()
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.New(fmt.Errorf("decoding model response: %w", err)).
			Component("inference").
			Category(errors.CategoryInference).
			Build()
	}

	detections := make([]RawDetection, 0, len(resp.Detections))
	for i := range resp.Detections {
		d := &resp.Detections[i]
		detections = append(detections, RawDetection{
			Label:      d.Label,
			Species:    d.Species,
			Confidence: d.Confidence,
			Box:        normalizeBox(d.Box),
			Polygon:    d.Polygon,
		})
	}
	return detections, nil
}

// post sends a JPEG body to the detect endpoint and returns the response body.
func (a *HTTPAdapter) post(ctx context.Context, jpegData []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/detect", bytes.NewReader(jpegData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server returned status %d", resp.StatusCode)
	}
	return body, nil
}

// normalizeBox enforces x1<x2, y1<y2 regardless of the order the model
// server emitted the corners in.
func normalizeBox(box [4]int) [4]int {
	if box[0] > box[2] {
		box[0], box[2] = box[2], box[0]
	}
	if box[1] > box[3] {
		box[1], box[3] = box[3], box[1]
	}
	return box
}

// syntheticJPEG encodes a small grey image used for warmup passes.
func syntheticJPEG() ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
