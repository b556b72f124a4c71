package sse

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Event is a database change to broadcast. Path is absolute ("/"-rooted)
// and Data is the new value at that path (nil after a delete).
type Event struct {
	Type string
	Path string
	Data any
}

type client struct {
	path string
	ch   chan []byte
}

type subscribeReq struct {
	path string
	ch   chan []byte
}

// Broker fans database change events out to connected event streams, each
// scoped to a subtree of the document tree.
//
// Concurrency model: a single internal event loop (goroutine) owns all
// mutable state (the client set). Public methods communicate with this
// loop through channels, so no mutexes are required.
type Broker struct {
	keepAliveEvery time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits keep-alive events on the given
// interval (30s when zero or negative).
func NewBroker(keepAliveEvery time.Duration) *Broker {
	if keepAliveEvery <= 0 {
		keepAliveEvery = 30 * time.Second
	}

	b := &Broker{
		keepAliveEvery: keepAliveEvery,
		subscribeCh:    make(chan subscribeReq),
		unsubscribeCh:  make(chan chan []byte),
		publishCh:      make(chan Event, 256),
		countReqCh:     make(chan chan int),
		stopCh:         make(chan struct{}),
		stopped:        make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]*client)

	keepAlive := time.NewTicker(b.keepAliveEvery)
	defer keepAlive.Stop()

	deliver := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Client buffer full; skip to avoid blocking the loop.
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = &client{path: normalizePath(req.path), ch: req.ch}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			for _, c := range clients {
				rel, visible := relativePath(c.path, normalizePath(ev.Path))
				if !visible {
					continue
				}
				payload, err := json.Marshal(map[string]any{
					"path": rel,
					"data": ev.Data,
				})
				if err != nil {
					continue
				}
				deliver(c.ch, frame(ev.Type, payload))
			}

		case <-keepAlive.C:
			raw := frame("keep-alive", []byte("null"))
			for ch := range clients {
				deliver(ch, raw)
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

func frame(eventType string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data))
}

func normalizePath(p string) string {
	return "/" + strings.Trim(p, "/")
}

// relativePath returns the change path relative to the watch root, and
// whether the change is visible from that root. A change at an ancestor
// of the watch root surfaces as "/".
func relativePath(watch, change string) (string, bool) {
	if watch == "/" {
		return change, true
	}
	if change == watch || strings.HasPrefix(change, watch+"/") {
		rel := strings.TrimPrefix(change, watch)
		if rel == "" {
			rel = "/"
		}
		return rel, true
	}
	if change == "/" || strings.HasPrefix(watch, change+"/") {
		return "/", true
	}
	return "", false
}

// Close gracefully stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client watching the subtree at path and returns its
// channel of pre-formatted SSE frames.
func (b *Broker) Subscribe(path string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{path: path, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts a database change to every client that can see it.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}
