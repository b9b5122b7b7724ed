package clocksync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TimeResponse is the payload served by the clock authority endpoint.
type TimeResponse struct {
	ServerTime time.Time `json:"server_time"`
	EpochMS    int64     `json:"epoch_ms"`
}

// HTTPTimeSource reads the authoritative instant from an HTTP endpoint.
type HTTPTimeSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPTimeSource returns a source for url with a short request timeout.
func NewHTTPTimeSource(url string) *HTTPTimeSource {
	return &HTTPTimeSource{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *HTTPTimeSource) ServerTime(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return time.Time{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := s.Client.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("time authority returned %s", resp.Status)
	}

	var body TimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("decode time response: %w", err)
	}
	if body.EpochMS > 0 {
		return time.UnixMilli(body.EpochMS).UTC(), nil
	}
	if body.ServerTime.IsZero() {
		return time.Time{}, fmt.Errorf("time response carried no instant")
	}
	return body.ServerTime, nil
}
