package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestCreateSessionEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/sessions", "application/json", strings.NewReader(`{"quizId":"quiz-1","hostId":"host-1"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var info struct {
		SessionID     string `json:"sessionId"`
		QuestionCount int    `json:"questionCount"`
		State         string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.SessionID == "" {
		t.Fatalf("expected session id")
	}
	if info.QuestionCount != 1 {
		t.Fatalf("expected 1 question, got %d", info.QuestionCount)
	}
	if info.State != "created" {
		t.Fatalf("expected created state, got %s", info.State)
	}
}

func TestCreateSessionUnknownQuizIs404(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/sessions", "application/json", strings.NewReader(`{"quizId":"missing","hostId":"host-1"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSnapshotAndLeaderboardEndpoints(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()

	info, err := service.CreateSession(ctx, "quiz-1", "host-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := service.OpenSession(ctx, info.SessionID, "host-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := service.Join(ctx, info.SessionID, "u1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	resp, err := http.Get(server.URL + "/sessions/" + info.SessionID)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap struct {
		State       string `json:"state"`
		Leaderboard struct {
			Entries []struct {
				ParticipantID string `json:"participantId"`
				Rank          int    `json:"rank"`
			} `json:"entries"`
		} `json:"leaderboard"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != "waiting" {
		t.Fatalf("expected waiting, got %s", snap.State)
	}
	if len(snap.Leaderboard.Entries) != 1 || snap.Leaderboard.Entries[0].ParticipantID != "u1" {
		t.Fatalf("unexpected leaderboard: %+v", snap.Leaderboard)
	}

	lb, err := http.Get(server.URL + "/sessions/" + info.SessionID + "/leaderboard")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	defer lb.Body.Close()
	if lb.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", lb.StatusCode)
	}
}

func TestSnapshotUnknownSessionIs404(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/sessions/unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
