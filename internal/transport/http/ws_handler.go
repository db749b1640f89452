package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

// SnapshotSource hands out per-session snapshot subscriptions.
type SnapshotSource interface {
	Subscribe(sessionID string) (<-chan domain.BattleSnapshot, func())
}

type WSHandler struct {
	battles  *app.BattleService
	updates  SnapshotSource
	upgrader websocket.Upgrader
	conns    connectionCounter
}

// connectionCounter tracks open sockets per session participant on this instance.
type connectionCounter struct {
	mu    sync.Mutex
	count map[string]int
}

func (c *connectionCounter) open(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == nil {
		c.count = make(map[string]int)
	}
	c.count[key]++
}

// close reports whether the last socket for key went away.
func (c *connectionCounter) close(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count[key]--
	if c.count[key] > 0 {
		return false
	}
	delete(c.count, key)
	return true
}

func NewWSHandler(battles *app.BattleService, updates SnapshotSource) *WSHandler {
	return &WSHandler{
		battles: battles,
		updates: updates,
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

type answerPayload struct {
	QuestionIndex   int       `json:"questionIndex"`
	OptionID        string    `json:"optionId"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
}

type answerResult struct {
	domain.AnswerResult
	Duplicate bool `json:"duplicate,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the battle use cases.
// Inbound: ready, next, answer, forfeit. Outbound: snapshot, question, answerResult, error.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")
	if sessionID == "" || userID == "" {
		http.Error(w, "missing sessionId or userId", http.StatusBadRequest)
		return
	}
	session, err := h.battles.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, ok := session.Participant(userID); !ok {
		writeError(w, domain.ErrNotParticipant)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// the request context ends with the handler; connection bookkeeping must outlive it
	ctx := context.WithoutCancel(r.Context())
	log := logrus.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID})

	updates, cancel := h.updates.Subscribe(sessionID)
	defer cancel()
	connKey := sessionID + "/" + userID
	h.conns.open(connKey)
	if err := h.battles.Reconnect(ctx, sessionID, userID); err != nil {
		log.Warnf("mark connected: %v", err)
	}
	defer func() {
		// another socket of the same participant keeps the session connected
		if !h.conns.close(connKey) {
			return
		}
		if err := h.battles.Disconnect(ctx, sessionID, userID); err != nil {
			log.Warnf("mark disconnected: %v", err)
		}
	}()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debugf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if current, err := h.battles.Get(ctx, sessionID); err == nil {
		send <- outboundMessage[any]{Type: "snapshot", Payload: current.Snapshot()}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, ok := h.dispatch(ctx, sessionID, userID, inbound); ok {
			send <- msg
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// dispatch runs one inbound command; snapshots for committed changes arrive through
// the subscription, so only direct replies are returned here.
func (h *WSHandler) dispatch(ctx context.Context, sessionID, userID string, inbound inboundMessage) (outboundMessage[any], bool) {
	switch inbound.Type {
	case "ready":
		if _, err := h.battles.Acknowledge(ctx, sessionID, userID); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{}, false
	case "next":
		q, err := h.battles.PresentNext(ctx, sessionID, userID)
		if err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "question", Payload: q}, true
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid answer payload"}}, true
		}
		if payload.ClientTimestamp.IsZero() {
			payload.ClientTimestamp = time.Now()
		}
		res, err := h.battles.SubmitAnswer(ctx, sessionID, userID, domain.AnswerSubmission{
			QuestionIndex:   payload.QuestionIndex,
			OptionID:        payload.OptionID,
			ClientTimestamp: payload.ClientTimestamp,
		})
		if err != nil && !errors.Is(err, domain.ErrAlreadyAnswered) {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "answerResult", Payload: answerResult{AnswerResult: res, Duplicate: err != nil}}, true
	case "forfeit":
		if _, err := h.battles.Forfeit(ctx, sessionID, userID); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{}, false
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "unsupported message type"}}, true
	}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorBody(err)}
}
