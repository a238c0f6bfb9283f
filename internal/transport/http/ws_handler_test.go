package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exam-grading-service/internal/app"
	"exam-grading-service/internal/domain"
	"exam-grading-service/internal/infra/memory"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestWebSocketSubmitFlow(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "exam-1", "u1")
	defer conn.Close()

	// Expect the current leaderboard first.
	readNext(t, conn, "leaderboard")

	autosave := map[string]any{
		"type": "autosave",
		"payload": map[string]any{
			"answers":   map[string]int{"q1": 1},
			"timeSpent": 30,
		},
	}
	if err := conn.WriteJSON(autosave); err != nil {
		t.Fatalf("write autosave: %v", err)
	}
	readNext(t, conn, "draftSaved")

	submit := map[string]any{
		"type": "submit",
		"payload": map[string]any{
			"answers": map[string]int{"q1": 1, "q2": 3},
			"statuses": map[string]any{
				"q1": map[string]any{"state": "answered", "option": 1, "timeSpent": 20},
			},
			"timeSpent": 60,
		},
	}
	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write submit: %v", err)
	}

	// Expect result then a pushed leaderboard, in either order.
	var result app.SubmitResult
	resultSeen, leaderboardSeen := false, false
	for i := 0; i < 4 && !(resultSeen && leaderboardSeen); i++ {
		typ, payload := readNext(t, conn, "")
		switch typ {
		case "result":
			resultSeen = true
			if err := json.Unmarshal(payload, &result); err != nil {
				t.Fatalf("decode result: %v", err)
			}
		case "leaderboard":
			leaderboardSeen = true
		}
	}
	if !resultSeen || !leaderboardSeen {
		t.Fatalf("expected result and leaderboard, got result=%v leaderboard=%v", resultSeen, leaderboardSeen)
	}
	if result.Score != 5 || result.Rank != 1 || result.Grade != "A+" {
		t.Fatalf("unexpected result %+v", result)
	}

	if err := conn.WriteJSON(submit); err != nil {
		t.Fatalf("write second submit: %v", err)
	}
	payload := readSkipping(t, conn, "error", "leaderboard")
	var e errorPayload
	_ = json.Unmarshal(payload, &e)
	if e.Code != "DUPLICATE_SUBMISSION" {
		t.Fatalf("expected duplicate error, got %+v", e)
	}
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	conn := dial(t, server, "exam-1", "u1")
	defer conn.Close()
	readNext(t, conn, "leaderboard")

	_ = conn.WriteJSON(map[string]any{"type": "answer"})
	_, payload := readNext(t, conn, "error")
	var e errorPayload
	_ = json.Unmarshal(payload, &e)
	if e.Code != "BAD_REQUEST" {
		t.Fatalf("expected bad request, got %+v", e)
	}

	_ = conn.WriteJSON(map[string]any{"type": "submit", "payload": map[string]any{"timeSpent": -1}})
	_, payload = readNext(t, conn, "error")
	_ = json.Unmarshal(payload, &e)
	if e.Code != "INVALID_ANSWER" {
		t.Fatalf("expected invalid answer, got %+v", e)
	}

	_ = conn.WriteJSON(map[string]any{"type": "ping"})
	readNext(t, conn, "pong")
}

func TestWebSocketRequiresParams(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws?examId=exam-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOtherSocketsReceivePushedLeaderboard(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	watcher := dial(t, server, "exam-1", "u2")
	defer watcher.Close()
	readNext(t, watcher, "leaderboard")

	player := dial(t, server, "exam-1", "u1")
	defer player.Close()
	readNext(t, player, "leaderboard")

	_ = player.WriteJSON(map[string]any{"type": "submit", "payload": map[string]any{"answers": map[string]int{"q1": 1}}})

	_, payload := readNext(t, watcher, "leaderboard")
	var lb domain.Leaderboard
	if err := json.Unmarshal(payload, &lb); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "u1" || lb.Entries[0].Rank != 1 {
		t.Fatalf("unexpected pushed leaderboard %+v", lb)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := memory.NewHub()
	catalog := memory.NewExamCatalog(memory.NewStaticExamLoader(sampleExams()), time.Minute)
	users := memory.NewUserDirectory(map[string]string{"u1": "Alice", "u2": "Bob"})
	service := app.NewSubmissionService(catalog, users, memory.NewStore(), hub)
	wsHandler := NewWSHandler(service, hub, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/leaderboard", wsHandler.LeaderboardHandler)
	return httptest.NewServer(mux)
}

func dial(t *testing.T, server *httptest.Server, examID, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?examId=" + examID + "&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%s)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

// readSkipping reads until a message of type expect arrives, skipping pushes of type skip.
func readSkipping(t *testing.T, conn *websocket.Conn, expect, skip string) json.RawMessage {
	t.Helper()
	for i := 0; i < 5; i++ {
		typ, payload := readNext(t, conn, "")
		if typ == expect {
			return payload
		}
		if typ != skip {
			t.Fatalf("expected type %s, got %s (%s)", expect, typ, payload)
		}
	}
	t.Fatalf("no %s message received", expect)
	return nil
}

func sampleExams() map[string]domain.Exam {
	return map[string]domain.Exam{
		"exam-1": {
			ID:        "exam-1",
			Title:     "Mock test",
			Published: true,
			Questions: []domain.ExamQuestion{
				{Question: domain.Question{ID: "q1", CorrectOption: 1, PositiveMarks: 2, Subject: "physics"}, Order: 1},
				{Question: domain.Question{ID: "q2", CorrectOption: 3, PositiveMarks: 3, NegativeMarks: 1, Subject: "maths"}, Order: 2},
			},
		},
	}
}
