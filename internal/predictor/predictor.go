package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"turnero/internal/domain"

	"github.com/rs/zerolog"
)

// Client calls the external occupancy service that estimates the wait
// from a camera snapshot of the establishment.
type Client struct {
	baseURL  string
	imageURL string
	http     *http.Client
	logger   *zerolog.Logger
}

func New(baseURL, imageURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		imageURL: imageURL,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type predictRequest struct {
	ImageURL string `json:"image_url"`
}

// Predict fetches the current occupancy estimate. Any transport or
// decode failure is an error; the coordinator treats errors as "no
// signal" and falls back to queue-length estimation.
func (c *Client) Predict(ctx context.Context) (*domain.Prediction, error) {
	body, err := json.Marshal(predictRequest{ImageURL: c.imageURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("predict service returned status %d", resp.StatusCode)
	}

	var prediction domain.Prediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("failed to decode prediction: %w", err)
	}

	c.logger.Debug().
		Int("people", prediction.People).
		Float64("estimated_minutes", prediction.EstimatedMinutes).
		Msg("Prediction received")
	return &prediction, nil
}
