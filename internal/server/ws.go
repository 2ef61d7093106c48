package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
	"github.com/GriffinCanCode/olfactory-vision/internal/trace"
)

// Message is the envelope of every WebSocket message.
type Message struct {
	Type string `json:"type"`
}

// SubscribeMessage narrows a connection to one run; an empty RunID restores all runs.
type SubscribeMessage struct {
	Type  string `json:"type"`
	RunID string `json:"run_id"`
}

// EventMessage carries one progress event.
type EventMessage struct {
	Type  string         `json:"type"`
	Event progress.Event `json:"event"`
}

// ErrorMessage reports a rejected client message.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type client struct {
	runID   string
	limiter *rate.Limiter
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	c := &client{limiter: rate.NewLimiter(WSRateLimit, WSRateBurst)}
	s.mu.Lock()
	s.conns[conn] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	ctx := r.Context()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}
		if !c.limiter.Allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: msgError, Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: msgError, Message: "invalid message"})
			continue
		}
		switch base.Type {
		case msgSubscribe:
			var sub SubscribeMessage
			if err := json.Unmarshal(msg, &sub); err != nil {
				continue
			}
			s.mu.Lock()
			c.runID = sub.RunID
			s.mu.Unlock()
			// replay what the run already reported
			if sub.RunID != "" {
				for _, e := range s.events.ForRun(sub.RunID) {
					_ = wsjson.Write(ctx, conn, EventMessage{Type: msgEvent, Event: e})
				}
			}
		default:
			_ = wsjson.Write(ctx, conn, ErrorMessage{Type: msgError, Message: "unknown message type " + base.Type})
		}
	}
}

// broadcastEvents tracks job progress and forwards every event to matching connections.
func (s *Server) broadcastEvents() {
	defer s.wg.Done()
	ch := s.events.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case e := <-ch:
			s.track(e)
			msg := EventMessage{Type: msgEvent, Event: e}

			s.mu.RLock()
			for conn, c := range s.conns {
				if c.runID != "" && c.runID != e.RunID {
					continue
				}
				go func(conn *websocket.Conn) {
					ctx, cancel := context.WithTimeout(context.Background(), WSWriteTimeout)
					defer cancel()
					_ = wsjson.Write(ctx, conn, msg)
				}(conn)
			}
			s.mu.RUnlock()
		}
	}
}

func (s *Server) track(e progress.Event) {
	s.jobs.Update(e.RunID, func(j *jobState) {
		if j.terminal() {
			return
		}
		j.Stage = e.Stage
		if e.Attempt > 0 {
			j.Attempt = e.Attempt
		}
		if e.Coverage > 0 {
			j.Coverage = e.Coverage
		}
	})
}
