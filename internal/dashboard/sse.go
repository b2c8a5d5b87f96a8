package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// promotionEvent is sent when the current run for the model name changes.
type promotionEvent struct {
	Name          string             `json:"name"`
	RunID         string             `json:"run_id"`
	PreviousRunID string             `json:"previous_run_id,omitempty"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
}

// handleSSE streams connected, heartbeat and promotion events. Promotions
// are detected by polling the registry.
func handleSSE(deps Deps) gin.HandlerFunc {
	poll := deps.PollInterval
	if poll <= 0 {
		poll = 3 * time.Second
	}
	beat := deps.HeartbeatInterval
	if beat <= 0 {
		beat = 15 * time.Second
	}

	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		if deps.Models == nil {
			return
		}

		ctx := c.Request.Context()
		name := c.DefaultQuery("name", deps.Models.DefaultName())

		// Only promotions after the client connected are reported.
		var lastRunID string
		if info, ok, err := deps.Models.CurrentInfo(ctx, name); err == nil && ok {
			lastRunID = info.RunID
		}

		ticker := time.NewTicker(poll)
		heartbeat := time.NewTicker(beat)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				info, ok, err := deps.Models.CurrentInfo(ctx, name)
				if err != nil {
					deps.Logger.Warn().Err(err).Msg("sse: poll current model")
					continue
				}
				if !ok || info.RunID == lastRunID {
					continue
				}
				writeSSE(c.Writer, "promotion", promotionEvent{
					Name:          name,
					RunID:         info.RunID,
					PreviousRunID: lastRunID,
					Metrics:       info.Metrics,
				})
				c.Writer.Flush()
				lastRunID = info.RunID
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
