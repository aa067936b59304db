package audit

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

type subscription struct {
	ch chan Event
}

type hub struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscription]struct{})}
}

func (h *hub) subscribe(buffer int) *subscription {
	sub := &subscription{ch: make(chan Event, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// unsubscribe is idempotent so connection teardown and closeAll can
// race safely.
func (h *hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// closeAll ends every subscription, draining the per-connection writer
// loops.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			// Slow observers lose events rather than stall the replay.
		}
	}
}

// FeedServer streams audit events to websocket observers. It is a
// Sink, so the recorder can fan into it like any other sink; the
// simulation never waits on a consumer.
type FeedServer struct {
	hub      *hub
	upgrader websocket.Upgrader
	log      *slog.Logger
	srv      *http.Server
}

// NewFeedServer creates a feed listening on addr once Start is called.
func NewFeedServer(addr string, log *slog.Logger) *FeedServer {
	f := &FeedServer{
		hub:      newHub(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/events", f.handleEvents)
	f.srv = &http.Server{Addr: addr, Handler: mux}
	return f
}

// Emit implements Sink.
func (f *FeedServer) Emit(ev Event) {
	f.hub.broadcast(ev)
}

// Start serves the feed in a background goroutine.
func (f *FeedServer) Start() {
	go func() {
		if err := f.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			f.log.Error("event feed stopped", slog.Any("error", err))
		}
	}()
}

// Close shuts the listener down and ends every open subscription.
// Closing the http server alone would strand hijacked websocket
// connections in their channel-drain loops.
func (f *FeedServer) Close() error {
	f.hub.closeAll()
	return f.srv.Close()
}

func (f *FeedServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("feed upgrade failed", slog.Any("error", err))
		return
	}
	sub := f.hub.subscribe(256)
	defer f.hub.unsubscribe(sub)
	defer conn.Close()

	for ev := range sub.ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
