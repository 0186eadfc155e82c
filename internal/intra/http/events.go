package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/state"
	"github.com/aussiebroadwan/intra/pkg/slogx"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// EventsHandler streams slot transitions over a websocket. The first frame
// is a snapshot of every slot; each later frame is one transition.
type EventsHandler struct {
	States   *state.Machine
	Upgrader websocket.Upgrader
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Subscribe before the snapshot so no transition falls in between.
	events, cancel := h.States.Subscribe(state.DefaultEventBuffer)
	defer cancel()

	if err := write(conn, EventMessage{Type: "snapshot", State: h.States.Snapshot()}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.Debug("event stream closed by client")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(conn, EventMessage{Type: "transition", Slot: ev.Slot, State: ev.State}); err != nil {
				log.Debug("event stream write failed", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func write(conn *websocket.Conn, msg EventMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
