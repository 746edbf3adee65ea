// Package leaderboard derives ranked standings from participant scores.
package leaderboard

import (
	"sort"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// Aggregator recomputes the ranked view after each scoring event and retains
// the previously emitted ranks per session to derive rank movement. A full
// O(N log N) sort per submission is fine at classroom scale.
type Aggregator struct {
	mu   sync.Mutex
	prev map[string]map[string]int // sessionID -> participantID -> last rank
}

func NewAggregator() *Aggregator {
	return &Aggregator{prev: make(map[string]map[string]int)}
}

// Compute sorts the given participants into dense 1..N ranks.
// Ordering: score descending; ties broken by the earlier last-correct-answer
// timestamp (a participant who reached the score first appears ahead), then
// by join order so the result is fully deterministic. A participant's first
// appearance has RankDelta 0.
func (a *Aggregator) Compute(sessionID string, questionIndex int, participants []domain.Participant, now time.Time) domain.Leaderboard {
	sorted := make([]domain.Participant, len(participants))
	copy(sorted, participants)

	sort.Slice(sorted, func(i, j int) bool {
		pi, pj := sorted[i], sorted[j]
		if pi.Score != pj.Score {
			return pi.Score > pj.Score
		}
		if !pi.LastCorrectAt.Equal(pj.LastCorrectAt) {
			// Zero means never correct; anyone with a correct answer sorts first.
			if pi.LastCorrectAt.IsZero() {
				return false
			}
			if pj.LastCorrectAt.IsZero() {
				return true
			}
			return pi.LastCorrectAt.Before(pj.LastCorrectAt)
		}
		return pi.JoinOrder < pj.JoinOrder
	})

	a.mu.Lock()
	defer a.mu.Unlock()

	prevRanks := a.prev[sessionID]
	newRanks := make(map[string]int, len(sorted))
	entries := make([]domain.LeaderboardEntry, 0, len(sorted))
	for i, p := range sorted {
		rank := i + 1
		delta := 0
		if prevRank, ok := prevRanks[p.ID]; ok {
			delta = prevRank - rank
		}
		newRanks[p.ID] = rank
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			Rank:          rank,
			RankDelta:     delta,
		})
	}
	a.prev[sessionID] = newRanks

	return domain.Leaderboard{
		SessionID:     sessionID,
		QuestionIndex: questionIndex,
		Entries:       entries,
		UpdatedAt:     now,
	}
}

// Preview computes the same ranked view as Compute but does not advance the
// retained ranks, so pull-based snapshot reads never consume rank movement
// that the next broadcast should report.
func (a *Aggregator) Preview(sessionID string, questionIndex int, participants []domain.Participant, now time.Time) domain.Leaderboard {
	a.mu.Lock()
	saved := a.prev[sessionID]
	a.mu.Unlock()

	lb := a.Compute(sessionID, questionIndex, participants, now)

	a.mu.Lock()
	if saved == nil {
		delete(a.prev, sessionID)
	} else {
		a.prev[sessionID] = saved
	}
	a.mu.Unlock()
	return lb
}

// Forget drops the retained ranks for a session once it is torn down.
func (a *Aggregator) Forget(sessionID string) {
	a.mu.Lock()
	delete(a.prev, sessionID)
	a.mu.Unlock()
}
