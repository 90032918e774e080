package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"monkeypress/internal/engine"
	"monkeypress/internal/words"
)

const wsWriteTimeout = 10 * time.Second

// The stream is public read-only data, so cross-origin pages may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Outbound message shapes. A connection receives cursor and init-words once,
// then char and word events as they happen.
type cursorMsg struct {
	Type   string `json:"type"`
	Cursor uint64 `json:"cursor"`
}

type initWordsMsg struct {
	Type  string      `json:"type"`
	Words []words.Hit `json:"words"`
}

type charMsg struct {
	Type  string `json:"type"`
	Index uint64 `json:"index"`
	Ch    string `json:"ch"`
}

type wordMsg struct {
	Type  string `json:"type"`
	Start uint64 `json:"start"`
	Len   int    `json:"len"`
	Word  string `json:"word"`
}

// handleWS upgrades the connection and relays engine events to it. Clients
// send nothing; inbound frames are drained only to observe disconnect.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	sub := s.engine.Subscribe()
	defer s.engine.Unsubscribe(sub)

	// Reader goroutine: the peer sends no application data, but reading is
	// required to process close frames and notice dead connections.
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
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := s.writeEvent(conn, ev); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.shutdown:
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				deadline)
			return
		}
	}
}

// writeEvent maps an engine event onto the wire format.
func (s *Server) writeEvent(conn *websocket.Conn, ev engine.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))

	switch ev := ev.(type) {
	case engine.Snapshot:
		if err := conn.WriteJSON(cursorMsg{Type: "cursor", Cursor: ev.Cursor}); err != nil {
			return err
		}
		hits := ev.Words
		if hits == nil {
			hits = []words.Hit{}
		}
		return conn.WriteJSON(initWordsMsg{Type: "init-words", Words: hits})
	case engine.Char:
		return conn.WriteJSON(charMsg{Type: "char", Index: ev.Index, Ch: ev.Ch})
	case engine.Word:
		return conn.WriteJSON(wordMsg{Type: "word", Start: ev.Start, Len: ev.Len, Word: ev.Word})
	default:
		return nil
	}
}
