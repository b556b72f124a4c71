// Package emulator implements a local Realtime-Database-compatible HTTP
// server: path-addressed JSON documents under /<path>.json, query
// filtering, ETag-guarded conditional writes, and SSE change streams. It
// backs the `blaze serve` command and the client's integration tests.
package emulator

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/starford/blaze/internal/sse"
	"github.com/starford/blaze/internal/store"
)

// etagRequestHeader mirrors the client: when set to "true" the response
// carries the stored value's ETag.
const etagRequestHeader = "X-Firebase-ETag"

// Server handles database requests against an in-memory tree.
type Server struct {
	tree   *store.Tree
	broker *sse.Broker
	db     *store.DB // nil disables persistence
	logger *slog.Logger

	// writeMu serializes conditional check-then-write sequences so that
	// If-Match preconditions are atomic across concurrent writers.
	writeMu sync.Mutex
}

// New creates a Server. db may be nil to run purely in memory.
func New(tree *store.Tree, broker *sse.Broker, db *store.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{tree: tree, broker: broker, db: db, logger: logger}
}

// NewRouter mounts all database routes on a chi router. token guards
// every route via the `auth` query parameter ("" disables auth).
func NewRouter(s *Server, token string) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(token))

	r.Get("/*", s.handleGet)
	r.Put("/*", s.handlePut)
	r.Post("/*", s.handlePost)
	r.Patch("/*", s.handlePatch)
	r.Delete("/*", s.handleDelete)

	return r
}

// dataPath extracts the tree path from the request URL. Every data URL
// must end in ".json"; the suffix is not part of the stored path.
func dataPath(r *http.Request) (string, bool) {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if !strings.HasSuffix(raw, ".json") {
		return "", false
	}
	return strings.Trim(strings.TrimSuffix(raw, ".json"), "/"), true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	path, ok := dataPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("data URLs must end in .json"))
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.serveStream(w, r, path)
		return
	}

	// Value and tag must come from one tree state: a write landing
	// between the two would pair a stale value with a fresh tag, and a
	// conditional write based on that pair would erase the concurrent
	// update.
	value, tag, _ := s.tree.GetWithETag(path)
	value, err := applyQuery(value, r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if r.Header.Get(etagRequestHeader) == "true" {
		w.Header().Set("ETag", tag)
	}
	writeJSON(w, http.StatusOK, value)
}

// checkMatch enforces an If-Match precondition. It reports false after
// writing the 412 response (current value plus fresh ETag) when the
// precondition fails. Callers must hold writeMu.
func (s *Server) checkMatch(w http.ResponseWriter, r *http.Request, path string) bool {
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
	current, tag, _ := s.tree.GetWithETag(path)
	if ifMatch == "" || ifMatch == tag {
		return true
	}
	w.Header().Set("ETag", tag)
	writeJSON(w, http.StatusPreconditionFailed, current)
	return false
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return false
	}
	if err := json.Unmarshal(data, into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	path, ok := dataPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("data URLs must end in .json"))
		return
	}

	var value any
	if !s.decodeBody(w, r, &value) {
		return
	}

	s.writeMu.Lock()
	if !s.checkMatch(w, r, path) {
		s.writeMu.Unlock()
		return
	}
	s.tree.Put(path, value)
	if r.Header.Get(etagRequestHeader) == "true" {
		w.Header().Set("ETag", s.tree.ETag(path))
	}
	s.writeMu.Unlock()

	s.publish("put", path, value)
	s.persist()
	writeJSON(w, http.StatusOK, value)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	path, ok := dataPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("data URLs must end in .json"))
		return
	}

	var value any
	if !s.decodeBody(w, r, &value) {
		return
	}

	s.writeMu.Lock()
	key := s.tree.Push(path, value)
	s.writeMu.Unlock()

	s.publish("put", path+"/"+key, value)
	s.persist()
	writeJSON(w, http.StatusOK, map[string]string{"name": key})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	path, ok := dataPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("data URLs must end in .json"))
		return
	}

	var fields map[string]any
	if !s.decodeBody(w, r, &fields) {
		return
	}

	s.writeMu.Lock()
	if !s.checkMatch(w, r, path) {
		s.writeMu.Unlock()
		return
	}
	s.tree.Patch(path, fields)
	s.writeMu.Unlock()

	s.publish("patch", path, fields)
	s.persist()
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	path, ok := dataPath(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("data URLs must end in .json"))
		return
	}

	s.writeMu.Lock()
	if !s.checkMatch(w, r, path) {
		s.writeMu.Unlock()
		return
	}
	s.tree.Delete(path)
	s.writeMu.Unlock()

	s.publish("put", path, nil)
	s.persist()
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) publish(eventType, path string, data any) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(sse.Event{Type: eventType, Path: "/" + path, Data: data})
}

func (s *Server) persist() {
	if s.db == nil {
		return
	}
	if err := s.db.Save(s.tree.Export()); err != nil {
		s.logger.Warn("snapshot save failed", slog.String("error", err.Error()))
	}
}

// serveStream is the SSE endpoint: an initial put event carrying the
// whole value at path, then live change events from the broker.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, path string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	value, _ := s.tree.Get(path)
	initial, err := json.Marshal(map[string]any{"path": "/", "data": value})
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: put\ndata: " + string(initial) + "\n\n"))
	flusher.Flush()

	ch := s.broker.Subscribe(path)
	defer s.broker.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
