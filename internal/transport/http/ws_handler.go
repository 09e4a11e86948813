package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"chart-abtest-service/internal/app"
	"chart-abtest-service/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultTickInterval is how often an active trial's timer is pushed to the client.
const DefaultTickInterval = 100 * time.Millisecond

type WSHandler struct {
	service      *app.TrialService
	validator    *payloadValidator
	log          logrus.FieldLogger
	tickInterval time.Duration
	upgrader     websocket.Upgrader
}

func NewWSHandler(service *app.TrialService, log logrus.FieldLogger, tickInterval time.Duration) *WSHandler {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &WSHandler{
		service:      service,
		validator:    newPayloadValidator(),
		log:          log,
		tickInterval: tickInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// currentSession tracks the id the connection drives; newSession swaps it.
// owned is set when the connection created the session rather than resuming it.
type currentSession struct {
	mu    sync.RWMutex
	id    string
	owned bool
}

func (c *currentSession) get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

func (c *currentSession) replace(id string) {
	c.mu.Lock()
	c.id = id
	c.owned = true
	c.mu.Unlock()
}

func (c *currentSession) release() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id, c.owned
}

// ServeWS upgrades HTTP requests to websockets and wires them into the trial use cases.
// An existing session can be resumed with ?sessionId=, otherwise a new one is created.
// A session the connection created is released on disconnect if it was never used.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var snapshot domain.SessionSnapshot
	if requested := r.URL.Query().Get("sessionId"); requested != "" {
		existing, err := h.service.Snapshot(ctx, requested)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		snapshot = existing
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	owned := snapshot.SessionID == ""
	if owned {
		snapshot = h.service.CreateSession(ctx)
	}
	session := &currentSession{id: snapshot.SessionID, owned: owned}
	log := h.log.WithField("session", snapshot.SessionID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	tickerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Warn("ws write error")
				return
			}
		}
	}()

	// Push-based timer: the tick operation is a pure read, so sampling it on a
	// schedule cannot disturb the trial.
	go func() {
		defer close(tickerDone)
		ticker := time.NewTicker(h.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				view, err := h.service.Tick(ctx, session.get())
				if err != nil || view.Status != domain.TrialActive {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "tick", Payload: view}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "session", Payload: snapshot}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		for _, msg := range h.dispatch(r, session, inbound) {
			select {
			case send <- msg:
			case <-writerDone:
			}
		}
	}

	close(closeSignals)
	<-tickerDone
	close(send)
	<-writerDone

	if id, owned := session.release(); owned {
		h.service.ReleaseSession(ctx, id)
	}
}

func (h *WSHandler) dispatch(r *http.Request, session *currentSession, inbound inboundMessage) []outboundMessage[any] {
	ctx := r.Context()
	id := session.get()
	fail := func(err error) []outboundMessage[any] {
		return []outboundMessage[any]{{Type: "error", Payload: errorPayload{Message: err.Error()}}}
	}

	switch inbound.Type {
	case "start":
		view, err := h.service.StartTrial(ctx, id)
		if err != nil {
			return fail(err)
		}
		return []outboundMessage[any]{{Type: "trial", Payload: view}}
	case "tick":
		view, err := h.service.Tick(ctx, id)
		if err != nil {
			return fail(err)
		}
		return []outboundMessage[any]{{Type: "tick", Payload: view}}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fail(errors.New("invalid answer payload"))
		}
		if err := h.validator.Struct(payload); err != nil {
			return fail(err)
		}
		result, err := h.service.SubmitAnswer(ctx, id, payload.Name)
		if err != nil {
			return fail(err)
		}
		out := []outboundMessage[any]{{Type: "answerResult", Payload: result}}
		if result.Correct {
			records, summary, err := h.service.Results(ctx, id)
			if err == nil {
				out = append(out, outboundMessage[any]{Type: "results", Payload: resultsPayload{Results: records, Summary: summary}})
			}
		}
		return out
	case "reset":
		view, err := h.service.ResetTrial(ctx, id)
		if err != nil {
			return fail(err)
		}
		return []outboundMessage[any]{{Type: "trial", Payload: view}}
	case "newSession":
		snapshot := h.service.NewSession(ctx, id)
		session.replace(snapshot.SessionID)
		return []outboundMessage[any]{{Type: "session", Payload: snapshot}}
	case "clearResults":
		if err := h.service.ClearResults(ctx, id); err != nil {
			return fail(err)
		}
		return []outboundMessage[any]{{Type: "results", Payload: resultsPayload{Results: []domain.ResultRecord{}, Summary: []domain.SummaryRow{}}}}
	case "results":
		records, summary, err := h.service.Results(ctx, id)
		if err != nil {
			return fail(err)
		}
		return []outboundMessage[any]{{Type: "results", Payload: resultsPayload{Results: records, Summary: summary}}}
	default:
		return fail(errors.New("unsupported message type"))
	}
}
