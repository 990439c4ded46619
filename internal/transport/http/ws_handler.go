package http

import (
	"encoding/json"
	"net/http"

	"event-trivia-service/internal/app"
	"event-trivia-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler streams live leaderboard snapshots of one game and, for connections
// opened with a playerId, accepts answer submissions.
type WSHandler struct {
	service  *app.QuizService
	hub      *app.Hub
	api      *API
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, hub *app.Hub, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		hub:     hub,
		api:     NewAPI(service, logger),
		logger:  logger,
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

type wsAnswerPayload struct {
	QuestionID     string `json:"questionId" validate:"required"`
	QuestionIndex  *int   `json:"questionIndex" validate:"required,gte=0"`
	AnswerID       string `json:"answerId" validate:"required"`
	ResponseTimeMs *int64 `json:"responseTimeMs" validate:"required,gte=0"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the live hub.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	playerID := r.URL.Query().Get("playerId")
	if gameID == "" {
		http.Error(w, "missing gameId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	liveConnections.Inc()
	defer liveConnections.Dec()
	log := h.logger.With(zap.String("game_id", gameID), zap.String("player_id", playerID))

	updates, cancel, err := h.hub.Subscribe(r.Context(), gameID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorDetail]{Type: "error", Payload: errorDetail{Code: domain.CodeOf(err), Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write failed", zap.Error(err))
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
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			send <- h.answer(r, gameID, playerID, inbound.Payload)
		case "ping":
			send <- outboundMessage[any]{Type: "pong"}
		default:
			send <- errorMessage(domain.CodeInvalidRequest, "unsupported message type")
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) answer(r *http.Request, gameID, playerID string, raw json.RawMessage) outboundMessage[any] {
	if playerID == "" {
		return errorMessage(domain.CodeInvalidRequest, "spectator connections cannot answer")
	}
	var payload wsAnswerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errorMessage(domain.CodeInvalidRequest, "invalid answer payload")
	}
	if err := h.api.check(payload); err != nil {
		return errorMessage(domain.CodeInvalidRequest, err.Error())
	}
	result, err := h.service.SubmitAnswer(r.Context(), domain.AnswerSubmission{
		GameID:         gameID,
		PlayerID:       playerID,
		QuestionID:     payload.QuestionID,
		QuestionIndex:  *payload.QuestionIndex,
		AnswerID:       payload.AnswerID,
		ResponseTimeMs: *payload.ResponseTimeMs,
	})
	observeAnswer("ws", result, err)
	if err != nil {
		code := domain.CodeOf(err)
		msg := err.Error()
		if code == domain.CodeInternal {
			h.logger.Error("ws answer failed", zap.String("game_id", gameID), zap.String("player_id", playerID), zap.Error(err))
			msg = "internal error"
		}
		return errorMessage(code, msg)
	}
	return outboundMessage[any]{Type: "answerResult", Payload: result}
}

func errorMessage(code domain.Code, msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorDetail{Code: code, Message: msg}}
}
