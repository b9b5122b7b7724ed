package viewer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPNudger posts to the engine's tick endpoint.
type HTTPNudger struct {
	URL    string
	Client *http.Client
}

// NewHTTPNudger returns a nudger for url, e.g. "https://host/api/tick?round_id=<id>".
func NewHTTPNudger(url string) *HTTPNudger {
	return &HTTPNudger{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (n *HTTPNudger) Nudge(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, nil)
	if err != nil {
		return err
	}
	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// 429 means someone else's nudge is already being served.
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("tick endpoint returned %s", resp.Status)
	}
	return nil
}
