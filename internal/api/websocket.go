package api

import (
	"log"
	"net/http"

	"warrant-trader/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents are the topics mirrored to websocket clients.
var streamedEvents = []events.Event{
	events.EventSignalVerified,
	events.EventSignalRejected,
	events.EventOrderSubmitted,
	events.EventOrderReplaced,
	events.EventOrderFilled,
	events.EventOrderRejected,
	events.EventRiskAlert,
	events.EventCooldownArmed,
}

type wsFrame struct {
	Event   events.Event `json:"event"`
	Payload any          `json:"payload"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan wsFrame, 100)
	unsubs := make([]func(), 0, len(streamedEvents))
	for _, ev := range streamedEvents {
		ch, unsub := s.Bus.Subscribe(ev, 100)
		unsubs = append(unsubs, unsub)
		go func(ev events.Event, ch <-chan any) {
			for msg := range ch {
				select {
				case merged <- wsFrame{Event: ev, Payload: msg}:
				default:
					// drop rather than stall the bus forwarders
				}
			}
		}(ev, ch)
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	// Reads are discarded; a read error means the client went away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case frame := <-merged:
			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}
