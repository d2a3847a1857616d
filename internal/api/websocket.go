package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"technical-analyst/internal/render"
	"technical-analyst/internal/session"
	"technical-analyst/observability"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 4096
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// clientMessage is one browser interaction on the session channel
type clientMessage struct {
	Type   string        `json:"type"`
	Value  string        `json:"value,omitempty"`
	Key    string        `json:"key,omitempty"`
	Index  int           `json:"index,omitempty"`
	Ticker string        `json:"ticker,omitempty"`
	Period string        `json:"period,omitempty"`
	Event  *render.Event `json:"event,omitempty"`
}

// wsPeer forwards session messages to one websocket connection. Messages are
// queued and written by a single goroutine; a full queue drops the message.
type wsPeer struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{conn: conn, send: make(chan []byte, wsSendBuffer), done: make(chan struct{})}
}

// Send implements session.Sink
func (p *wsPeer) Send(msg session.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		observability.Warn("failed to encode session message", "type", msg.Type, "error", err)
		return
	}
	select {
	case <-p.done:
	case p.send <- data:
	default:
		observability.Warn("session channel full, dropping message", "type", msg.Type)
	}
}

func (p *wsPeer) close() {
	p.once.Do(func() { close(p.done) })
}

func (p *wsPeer) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			p.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				p.close()
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				return
			}
		}
	}
}

// HandleSessionSocket attaches a websocket to page session {id}. Closing the
// connection closes the session.
func (h *Handler) HandleSessionSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := h.app.Sessions().Get(id)
	if !ok {
		h.jsonError(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.WithSession(id).Warn("websocket upgrade failed", "error", err)
		return
	}

	peer := newPeer(conn)
	s.Attach(peer)
	go peer.writePump()

	defer func() {
		s.Detach(peer)
		peer.close()
		h.app.Sessions().Close(id)
		observability.WithSession(id).Debug("session socket closed")
	}()

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		h.handleClientMessage(s, msg)
	}
}

// handleClientMessage applies one browser interaction to the session
func (h *Handler) handleClientMessage(s *session.Session, msg clientMessage) {
	log := observability.WithSession(s.ID())
	ctl := s.Search()

	switch msg.Type {
	case "input":
		if ctl != nil {
			ctl.Input(msg.Value)
		}
	case "key":
		if ctl != nil {
			ctl.Key(msg.Key)
		}
	case "dismiss":
		if ctl != nil {
			ctl.Dismiss()
		}
	case "hover":
		if ctl != nil {
			ctl.Hover(msg.Index)
		}
	case "select":
		if ctl != nil {
			ctl.Select(msg.Index)
		}
	case "navigate":
		go func() {
			if _, err := s.Navigate(s.Context(), msg.Ticker, msg.Period); err != nil {
				log.Debug("navigation failed", "ticker", msg.Ticker, "error", err)
			}
		}()
	case "event":
		if msg.Event == nil {
			return
		}
		if _, ok := render.ParseEventType(string(msg.Event.Type)); !ok {
			log.Debug("ignoring unknown chart event", "type", msg.Event.Type)
			return
		}
		if err := s.Dispatch(*msg.Event); err != nil {
			log.Debug("chart event not delivered", "container", msg.Event.Container, "error", err)
		}
	default:
		log.Debug("ignoring unknown session message", "type", msg.Type)
	}
}
