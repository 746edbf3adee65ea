package leaderboard

import (
	"testing"
	"time"

	"livequiz-service/internal/domain"
)

func TestRanksAreDenseAndSorted(t *testing.T) {
	agg := NewAggregator()
	now := time.Now()

	lb := agg.Compute("s1", 0, []domain.Participant{
		{ID: "p1", DisplayName: "Alice", Score: 900, JoinOrder: 0},
		{ID: "p2", DisplayName: "Bob", Score: 550, JoinOrder: 1},
		{ID: "p3", DisplayName: "Cara", Score: 1000, JoinOrder: 2},
	}, now)

	if len(lb.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(lb.Entries))
	}
	for i, e := range lb.Entries {
		if e.Rank != i+1 {
			t.Fatalf("ranks must be dense 1..N, entry %d has rank %d", i, e.Rank)
		}
		if i > 0 && lb.Entries[i-1].Score < e.Score {
			t.Fatalf("entries must be sorted by descending score: %+v", lb.Entries)
		}
	}
	if lb.Entries[0].ParticipantID != "p3" || lb.Entries[2].ParticipantID != "p2" {
		t.Fatalf("unexpected order: %+v", lb.Entries)
	}
}

func TestTieBreakEarliestCorrectThenJoinOrder(t *testing.T) {
	agg := NewAggregator()
	now := time.Now()

	lb := agg.Compute("s1", 0, []domain.Participant{
		{ID: "late", DisplayName: "Late", Score: 700, JoinOrder: 0, LastCorrectAt: now},
		{ID: "early", DisplayName: "Early", Score: 700, JoinOrder: 1, LastCorrectAt: now.Add(-5 * time.Second)},
	}, now)

	if lb.Entries[0].ParticipantID != "early" {
		t.Fatalf("tie must go to the earlier correct answer, got %+v", lb.Entries)
	}

	// Neither has answered correctly: join order decides.
	lb = agg.Compute("s2", 0, []domain.Participant{
		{ID: "second", DisplayName: "B", Score: 0, JoinOrder: 1},
		{ID: "first", DisplayName: "A", Score: 0, JoinOrder: 0},
	}, now)
	if lb.Entries[0].ParticipantID != "first" {
		t.Fatalf("join order must break the zero-score tie, got %+v", lb.Entries)
	}
}

func TestRankDeltaTracksMovement(t *testing.T) {
	agg := NewAggregator()
	now := time.Now()

	first := agg.Compute("s1", 0, []domain.Participant{
		{ID: "p1", DisplayName: "Alice", Score: 100, JoinOrder: 0},
		{ID: "p2", DisplayName: "Bob", Score: 50, JoinOrder: 1},
	}, now)
	for _, e := range first.Entries {
		if e.RankDelta != 0 {
			t.Fatalf("first appearance must have delta 0, got %+v", e)
		}
	}

	// Bob overtakes Alice.
	second := agg.Compute("s1", 1, []domain.Participant{
		{ID: "p1", DisplayName: "Alice", Score: 100, JoinOrder: 0},
		{ID: "p2", DisplayName: "Bob", Score: 150, JoinOrder: 1},
	}, now.Add(time.Second))

	if second.Entries[0].ParticipantID != "p2" || second.Entries[0].RankDelta != 1 {
		t.Fatalf("expected Bob up one rank, got %+v", second.Entries[0])
	}
	if second.Entries[1].ParticipantID != "p1" || second.Entries[1].RankDelta != -1 {
		t.Fatalf("expected Alice down one rank, got %+v", second.Entries[1])
	}
}

func TestForgetResetsDeltas(t *testing.T) {
	agg := NewAggregator()
	now := time.Now()

	_ = agg.Compute("s1", 0, []domain.Participant{{ID: "p1", DisplayName: "A", Score: 10}}, now)
	agg.Forget("s1")
	lb := agg.Compute("s1", 0, []domain.Participant{{ID: "p1", DisplayName: "A", Score: 20}}, now)
	if lb.Entries[0].RankDelta != 0 {
		t.Fatalf("forgotten session must restart deltas at 0, got %+v", lb.Entries[0])
	}
}
