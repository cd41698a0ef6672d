// Package server is a reference push endpoint speaking the envelope protocol
// of pkg/transport over long polling.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/viper"
)

const defaultPollTimeout = 30 * time.Second

// Server serves connect, poll and send endpoints backed by an in-memory bus.
type Server struct {
	cfg    *viper.Viper
	log    *slog.Logger
	bus    *bus
	prefix string
}

type envelope struct {
	Messages      []json.RawMessage `json:"Messages"`
	MessageID     int64             `json:"MessageId"`
	TransportData transportData     `json:"TransportData"`
}

type transportData struct {
	Groups []string `json:"Groups"`
}

type command struct {
	Join    *string         `json:"join"`
	Leave   *string         `json:"leave"`
	Group   string          `json:"group"`
	Message json.RawMessage `json:"message"`
}

func New(cfg *viper.Viper, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.GetString("server.prefix")
	if prefix == "" {
		prefix = "/signalr/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Server{
		cfg:    cfg,
		log:    logger.With("component", "server"),
		bus:    newBus(cfg.GetInt("server.retain")),
		prefix: prefix,
	}
}

// Router returns an http.Handler with registered routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get(s.prefix+"connect", s.handleConnect)
	r.Get(s.prefix+"poll", s.handlePoll)
	r.Post(s.prefix+"send", s.handleSend)
	return r
}

// Publish appends data to the bus. An empty group reaches every connection.
func (s *Server) Publish(group string, data json.RawMessage) int64 {
	id := s.bus.publish(group, data)
	s.log.Debug("published", "message_id", id, "group", group)
	return id
}

// Connected reports whether connID has connected or joined a group.
func (s *Server) Connected(connID string) bool {
	return s.bus.known(connID)
}

func (s *Server) pollTimeout() time.Duration {
	if d := s.cfg.GetDuration("server.poll_timeout"); d > 0 {
		return d
	}
	return defaultPollTimeout
}

// handleConnect registers the client's group set and replies immediately:
// with the backlog after messageId when one is given, else with the current
// cursor and no messages.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	connID := q.Get("connectionId")
	if connID == "" {
		http.Error(w, "missing connectionId", http.StatusBadRequest)
		return
	}
	cursor, ok, err := parseCursor(q.Get("messageId"))
	if err != nil {
		http.Error(w, "bad messageId", http.StatusBadRequest)
		return
	}
	if !ok {
		cursor = s.bus.last()
	}
	groups := s.bus.setGroups(connID, splitGroups(q.Get("groups")))
	msgs, last, _ := s.bus.since(cursor, groups)
	s.log.Info("connect", "connection_id", connID, "transport", q.Get("transport"), "message_id", cursor, "backlog", len(msgs))
	writeEnvelope(w, msgs, last, groups)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	connID := q.Get("connectionId")
	if connID == "" {
		http.Error(w, "missing connectionId", http.StatusBadRequest)
		return
	}
	cursor, ok, err := parseCursor(q.Get("messageId"))
	if err != nil {
		http.Error(w, "bad messageId", http.StatusBadRequest)
		return
	}
	if !ok {
		cursor = s.bus.last()
	}

	timer := time.NewTimer(s.pollTimeout())
	defer timer.Stop()
	for {
		groups := s.bus.groupsOf(connID)
		msgs, last, wake := s.bus.since(cursor, groups)
		// Also reply when only invisible messages arrived so the cursor moves past them.
		if last > cursor {
			writeEnvelope(w, msgs, last, groups)
			return
		}
		select {
		case <-wake:
		case <-timer.C:
			writeJSON(w, struct{}{})
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	connID := r.URL.Query().Get("connectionId")
	if connID == "" {
		http.Error(w, "missing connectionId", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	data := r.PostForm.Get("data")

	var cmd command
	if err := json.Unmarshal([]byte(data), &cmd); err == nil {
		switch {
		case cmd.Join != nil:
			writeJSON(w, transportData{Groups: nonNil(s.bus.join(connID, *cmd.Join))})
			return
		case cmd.Leave != nil:
			writeJSON(w, transportData{Groups: nonNil(s.bus.leave(connID, *cmd.Leave))})
			return
		case cmd.Group != "" && len(cmd.Message) > 0:
			s.Publish(cmd.Group, cmd.Message)
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	raw := json.RawMessage(data)
	if !json.Valid(raw) {
		raw, _ = json.Marshal(data)
	}
	s.Publish("", raw)
	w.WriteHeader(http.StatusOK)
}

func parseCursor(s string) (int64, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func splitGroups(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func writeEnvelope(w http.ResponseWriter, msgs []message, last int64, groups []string) {
	env := envelope{
		Messages:      make([]json.RawMessage, 0, len(msgs)),
		MessageID:     last,
		TransportData: transportData{Groups: nonNil(groups)},
	}
	for _, m := range msgs {
		env.Messages = append(env.Messages, m.Data)
	}
	writeJSON(w, env)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
