package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/meditimer/internal/app/notification"
)

// streamBuffer is the number of notifications queued per SSE client.
const streamBuffer = 16

// StreamProgress streams notifications as server-sent events: the current
// snapshot first, then session events and a snapshot every refresh interval.
// Notifications are dropped when the client falls behind.
func StreamProgress(src Source, refresh time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		queue := make(chan *notification.Notification, streamBuffer)
		unsubscribe, err := src.Watch(notification.StreamFunc(func(n *notification.Notification) error {
			select {
			case queue <- n:
			default:
			}
			return nil
		}))
		if err != nil {
			respondError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer unsubscribe()

		ticker := time.NewTicker(refresh)
		defer ticker.Stop()

		for {
			var n *notification.Notification
			select {
			case <-r.Context().Done():
				return
			case <-src.Done():
				return
			case n = <-queue:
			case now := <-ticker.C:
				n = &notification.Notification{Type: notification.TypeSnapshot, Snapshot: src.Snapshot(), At: now}
			}

			if err := writeEvent(w, n); err != nil {
				zlog.Debug().Err(err).Msg("progress stream closed")
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, n *notification.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, data)
	return err
}
