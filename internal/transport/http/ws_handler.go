package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Subscriber delivers invalidation notices for one exam.
type Subscriber interface {
	Subscribe(examID string) (<-chan domain.CacheScope, func())
}

type WSHandler struct {
	service  *app.SubmissionService
	hub      Subscriber
	validate *validator.Validate
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.SubmissionService, hub Subscriber, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service:  service,
		hub:      hub,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws_handler").Logger(),
	}
}

type inboundMessage struct {
	Type    string          `json:"type" validate:"required,oneof=autosave submit ping"`
	Payload json.RawMessage `json:"payload"`
}

type sheetPayload struct {
	Answers   map[string]int                   `json:"answers" validate:"omitempty,dive,keys,required,endkeys,gte=0"`
	Statuses  map[string]domain.QuestionStatus `json:"statuses"`
	TimeSpent int                              `json:"timeSpent" validate:"gte=0"`
}

type draftSaved struct {
	SubmissionID string    `json:"submissionId"`
	SavedAt      time.Time `json:"savedAt"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the grading use cases.
// Query: examId, userId.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	examID := r.URL.Query().Get("examId")
	userID := r.URL.Query().Get("userId")
	if examID == "" || userID == "" {
		http.Error(w, "missing examId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	updates, cancel := h.hub.Subscribe(examID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Str("exam_id", examID).Msg("ws write error")
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-closeSignals:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case _, ok := <-updates:
				if !ok {
					return
				}
				if !push(h.leaderboardMessage(ctx, examID)) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- h.leaderboardMessage(ctx, examID)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		send <- h.handle(ctx, examID, userID, inbound)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, examID, userID string, in inboundMessage) outboundMessage[any] {
	if err := h.validate.Struct(in); err != nil {
		return errorMessage("BAD_REQUEST", "unsupported message type")
	}
	if in.Type == "ping" {
		return outboundMessage[any]{Type: "pong", Payload: struct{}{}}
	}

	var sheet sheetPayload
	if err := json.Unmarshal(in.Payload, &sheet); err != nil {
		return errorMessage("BAD_REQUEST", "invalid "+in.Type+" payload")
	}
	if err := h.validate.Struct(sheet); err != nil {
		return errorMessage("INVALID_ANSWER", err.Error())
	}

	switch in.Type {
	case "autosave":
		sub, err := h.service.SaveDraft(ctx, app.DraftRequest{
			UserID:    userID,
			ExamID:    examID,
			Answers:   sheet.Answers,
			Statuses:  sheet.Statuses,
			TimeSpent: sheet.TimeSpent,
		})
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage[any]{Type: "draftSaved", Payload: draftSaved{SubmissionID: sub.ID, SavedAt: sub.UpdatedAt}}
	default:
		res, err := h.service.Submit(ctx, app.SubmitRequest{
			UserID:    userID,
			ExamID:    examID,
			Answers:   sheet.Answers,
			Statuses:  sheet.Statuses,
			TimeSpent: sheet.TimeSpent,
		})
		if err != nil {
			return errorFor(err)
		}
		return outboundMessage[any]{Type: "result", Payload: res}
	}
}

func (h *WSHandler) leaderboardMessage(ctx context.Context, examID string) outboundMessage[any] {
	lb, err := h.service.Leaderboard(ctx, examID)
	if err != nil {
		return errorFor(err)
	}
	return outboundMessage[any]{Type: "leaderboard", Payload: lb}
}

// LeaderboardHandler serves GET /leaderboard?examId= as JSON.
func (h *WSHandler) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	examID := r.URL.Query().Get("examId")
	if examID == "" {
		http.Error(w, "missing examId", http.StatusBadRequest)
		return
	}
	lb, err := h.service.Leaderboard(r.Context(), examID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(lb)
}

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrExamNotFound, "EXAM_NOT_FOUND"},
	{domain.ErrExamNotAvailable, "EXAM_NOT_AVAILABLE"},
	{domain.ErrDuplicateSubmission, "DUPLICATE_SUBMISSION"},
	{domain.ErrAlreadySubmitted, "ALREADY_SUBMITTED"},
	{domain.ErrInvalidAnswer, "INVALID_ANSWER"},
	{domain.ErrSubmissionNotFound, "NOT_FOUND"},
}

func errorFor(err error) outboundMessage[any] {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return errorMessage(ec.code, err.Error())
		}
	}
	return errorMessage("UNAVAILABLE", domain.ErrUnavailable.Error())
}

func errorMessage(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}
