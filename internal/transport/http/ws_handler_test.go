package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"competition-service/internal/app"
	"competition-service/internal/domain"
	"competition-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func TestWebSocketLeaderboardFeed(t *testing.T) {
	service := newTestService(t)
	if _, err := service.StartCompetition(context.Background(), "comp-a", 0); err != nil {
		t.Fatalf("start: %v", err)
	}

	server := httptest.NewServer(NewRouter(service, testAPIKey))
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the initial snapshot first.
	_, payload := readNext(t, conn, "leaderboard")
	if payload["competitionId"] != "comp-a" {
		t.Fatalf("expected comp-a snapshot, got %+v", payload)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"user": "alice", "level": 1, "answer": "7"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	// Expect answerResult and a leaderboard carrying alice, in either order.
	answerSeen := false
	standingsSeen := false
	for i := 0; i < 3 && !(answerSeen && standingsSeen); i++ {
		typ, payload := readNext(t, conn, "")
		switch typ {
		case "answerResult":
			if payload["correct"] != true || payload["nextLevel"] != float64(2) {
				t.Fatalf("unexpected answer result %+v", payload)
			}
			answerSeen = true
		case "leaderboard":
			if standings, ok := payload["standings"].([]any); ok && len(standings) == 1 {
				standingsSeen = true
			}
		}
	}
	if !answerSeen || !standingsSeen {
		t.Fatalf("expected answerResult and updated leaderboard, got answerResult=%v leaderboard=%v", answerSeen, standingsSeen)
	}

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(t, conn, "error")
}

func TestWebSocketUnknownCompetition(t *testing.T) {
	service := newTestService(t)
	server := httptest.NewServer(NewRouter(service, testAPIKey))
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/leaderboard?competition_id=nope"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

type brokenResultsStore struct {
	*memory.Store
}

func (brokenResultsStore) SaveBest(context.Context, domain.Result) (bool, error) {
	return false, domain.Storage("save best", errors.New("disk I/O error at /var/lib/competition.db"))
}

func TestWebSocketAnswerHidesStorageErrors(t *testing.T) {
	ctx := context.Background()
	loader := memory.NewStaticLoader(domain.Competition{
		ID:     "comp-a",
		Name:   "Alpha",
		Levels: map[int]domain.Level{1: {Number: 1, InputType: domain.InputNumber, ExpectedAnswer: "7"}},
	})
	catalog, err := app.NewCatalogProvider(ctx, loader, "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	service := app.NewService(brokenResultsStore{memory.NewStore()}, catalog, nil, nil)
	if err := service.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	server := httptest.NewServer(NewRouter(service, testAPIKey))
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/leaderboard?competition_id=comp-a"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(t, conn, "leaderboard")

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"user": "alice", "level": 1, "answer": "7"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	_, payload := readNext(t, conn, "error")
	if payload["message"] != "internal error" {
		t.Fatalf("expected generic message, got %+v", payload)
	}
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
