package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/graham/internal/events"
	"github.com/aristath/graham/internal/metrics"
)

const (
	eventBuffer       = 100
	heartbeatInterval = 30 * time.Second
	writeTimeout      = 5 * time.Second
)

// subscribe connects a buffered channel to the bus. The optional "types"
// query parameter is a comma separated filter.
func (s *Server) subscribe(r *http.Request) (<-chan *events.Event, func()) {
	types := events.AllTypes()
	if filter := r.URL.Query().Get("types"); filter != "" {
		types = nil
		for _, t := range strings.Split(filter, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, events.EventType(strings.ToUpper(t)))
			}
		}
	}

	eventChan := make(chan *events.Event, eventBuffer)
	handler := func(event *events.Event) {
		// Non-blocking send (drop if channel full)
		select {
		case eventChan <- event:
		default:
			s.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		unsubs = append(unsubs, s.eventBus.Subscribe(t, handler))
	}

	return eventChan, func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func eventMessage(event *events.Event) map[string]interface{} {
	return map[string]interface{}{
		"type":      string(event.Type),
		"module":    event.Module,
		"timestamp": event.Timestamp.Format(time.RFC3339),
		"data":      event.Data,
	}
}

func heartbeatMessage() map[string]interface{} {
	return map[string]interface{}{
		"type":      "heartbeat",
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

var connectedMessage = map[string]interface{}{
	"type":    "connected",
	"message": "Connected to event stream",
}

// handleEventsWebSocket streams events over a websocket
// GET /api/events/ws[?types=A,B]
func (s *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	eventChan, unsubscribe := s.subscribe(r)
	defer unsubscribe()

	metrics.WebSocketClients.Inc()
	defer metrics.WebSocketClients.Dec()

	// Clients only listen; CloseRead handles control frames and cancels ctx on close
	ctx := conn.CloseRead(r.Context())

	s.log.Info().Msg("Client connected to event websocket")

	write := func(msg interface{}) error {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return wsjson.Write(writeCtx, conn, msg)
	}

	if err := write(connectedMessage); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Client disconnected from event websocket")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case <-s.baseCtx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case event := <-eventChan:
			if err := write(eventMessage(event)); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}

		case <-heartbeat.C:
			if err := write(heartbeatMessage()); err != nil {
				return
			}
		}
	}
}

// handleEventsStream streams events as Server-Sent Events
// GET /api/events/stream[?types=A,B]
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan, unsubscribe := s.subscribe(r)
	defer unsubscribe()

	s.writeSSE(w, connectedMessage)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.baseCtx.Done():
			return
		case event := <-eventChan:
			s.writeSSE(w, eventMessage(event))
			flusher.Flush()
		case <-heartbeat.C:
			s.writeSSE(w, heartbeatMessage())
			flusher.Flush()
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, msg map[string]interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal event")
		data = []byte(`{"error":"failed to encode event"}`)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
