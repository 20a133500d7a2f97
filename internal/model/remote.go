package model

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// RemoteOption configures a RemoteScorer.
type RemoteOption func(*RemoteScorer)

// WithHTTPClient sets the HTTP client used for prediction calls.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(s *RemoteScorer) { s.client = hc }
}

// RemoteScorer delegates scoring to a model server exposing POST /predict.
type RemoteScorer struct {
	endpoint string
	width    int
	client   *http.Client
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// NewRemoteScorer returns a scorer posting rows of width values to baseURL/predict.
func NewRemoteScorer(baseURL string, width int, opts ...RemoteOption) *RemoteScorer {
	s := &RemoteScorer{
		endpoint: strings.TrimRight(baseURL, "/") + "/predict",
		width:    width,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Width is the row width the server expects.
func (s *RemoteScorer) Width() int { return s.width }

// Score sends one row and returns the first prediction.
func (s *RemoteScorer) Score(ctx context.Context, values []float64) (float64, error) {
	if len(values) != s.width {
		return 0, eris.Wrapf(ErrSchemaMismatch, "model: got %d values, want %d", len(values), s.width)
	}

	body, err := json.Marshal(predictRequest{Instances: [][]float64{values}})
	if err != nil {
		return 0, eris.Wrap(err, "model: marshal predict request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, eris.Wrap(err, "model: create predict request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "model: predict request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, eris.Errorf("model: predict status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, eris.Wrap(err, "model: decode predict response")
	}
	if len(out.Predictions) == 0 {
		return 0, eris.New("model: predict response has no predictions")
	}
	return out.Predictions[0], nil
}
