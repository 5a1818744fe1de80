//go:build !(rp2040 || rp2350)

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"sensorbridge-go/services/core"
	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
)

const (
	reasonClientConnected = "client-connected"
	writeWait             = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events upgrades to a websocket and pushes a status document for the new
// client followed by every status message on the bus.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	l := GetLogger(r.Context())
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		l.Warn("api:ws-upgrade-failed", logx.ErrAttr(err))
		return
	}
	defer ws.Close()

	first := h.core.Snapshot()
	first.Reason = reasonClientConnected
	if err := writeStatus(ws, first); err != nil {
		return
	}
	if h.bus == nil {
		return
	}

	conn := h.bus.NewConnection("api-ws")
	sub := conn.Subscribe(core.TopicStatus)
	defer conn.Disconnect()

	// The read side only exists to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	l.Debug("api:ws-connected")
	for {
		select {
		case <-closed:
			l.Debug("api:ws-closed")
			return
		case <-r.Context().Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}
			s, ok := m.Payload.(types.Status)
			if !ok {
				continue
			}
			if err := writeStatus(ws, s); err != nil {
				l.Debug("api:ws-write-failed", logx.ErrAttr(err))
				return
			}
		}
	}
}

func writeStatus(ws *websocket.Conn, s types.Status) error {
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteJSON(s)
}
