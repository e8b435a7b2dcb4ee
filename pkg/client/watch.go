package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/garnizeh/fieldops/internal/realtime"
	"github.com/garnizeh/fieldops/pkg/models"
)

// Watch streams job snapshots until ctx is cancelled or the connection
// drops. An empty jobID follows every job assigned to the signed-in staff
// member. fn runs on the reading goroutine.
func (c *Client) Watch(ctx context.Context, jobID string, fn func(models.Job)) error {
	u, err := url.Parse(c.baseURL + "/v1/ws")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if jobID != "" {
		q := u.Query()
		q.Set("job_id", jobID)
		u.RawQuery = q.Encode()
	}

	hdr := http.Header{}
	if c.appVersion != "" {
		hdr.Set(AppVersionHeader, c.appVersion)
	}
	if tok := c.Token(); tok != "" {
		hdr.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(resp.Status)}
		}
		return fmt.Errorf("dial realtime: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read realtime: %w", err)
		}
		if ev.Job != nil {
			fn(*ev.Job)
		}
	}
}
