// Package scoring computes points for answer submissions. The engine is a
// pure function of its inputs so retried submissions always score the same.
package scoring

import (
	"fmt"
	"math"
	"time"

	"livequiz-service/internal/domain"
)

// Config holds the scoring constants.
type Config struct {
	// BasePoints is the award for an instant correct answer.
	BasePoints int
	// MinReward is the floor for any correct answer, however late.
	MinReward int
	// SpeedWeight is the fraction of BasePoints that decays linearly over
	// the question's time limit. 0.5 means the slowest correct answer inside
	// the limit earns half the base.
	SpeedWeight float64
	// GraceWindow tolerates clock skew between the countdown firing and a
	// submission arriving. Anything later than limit+grace is a timeout.
	GraceWindow time.Duration
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		BasePoints:  1000,
		MinReward:   500,
		SpeedWeight: 0.5,
		GraceWindow: 2 * time.Second,
	}
}

// Result is the outcome of scoring one submission.
type Result struct {
	IsCorrect     bool
	PointsAwarded int
	TimedOut      bool
}

// Engine scores submissions against questions.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.BasePoints <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// Grace returns the configured grace window, so the controller can keep the
// question open exactly as long as the engine will still accept answers.
func (e *Engine) Grace() time.Duration { return e.cfg.GraceWindow }

// Score evaluates selected against the question. Correctness compares option
// text. Points decay linearly with elapsed time: correct-and-faster always
// beats correct-and-slower, clamped to [MinReward, BasePoints]; any incorrect
// answer earns zero. A submission past limit+grace is a timeout scored as
// incorrect, not an error.
func (e *Engine) Score(q domain.Question, selected string, elapsed, limit time.Duration) (Result, error) {
	if elapsed < 0 {
		return Result{}, fmt.Errorf("%w: negative elapsed time %v", domain.ErrInvalidSubmission, elapsed)
	}
	if selected == "" || !q.HasOption(selected) {
		return Result{}, fmt.Errorf("%w: option %q not in question %q", domain.ErrInvalidSubmission, selected, q.ID)
	}
	if limit > 0 && elapsed > limit+e.cfg.GraceWindow {
		return Result{TimedOut: true}, nil
	}
	if selected != q.CorrectOption {
		return Result{}, nil
	}
	return Result{IsCorrect: true, PointsAwarded: e.points(elapsed, limit)}, nil
}

func (e *Engine) points(elapsed, limit time.Duration) int {
	if limit <= 0 {
		return e.cfg.BasePoints
	}
	fraction := float64(elapsed) / float64(limit)
	if fraction > 1 {
		fraction = 1
	}
	pts := int(math.Floor(float64(e.cfg.BasePoints) * (1 - e.cfg.SpeedWeight*fraction)))
	if pts < e.cfg.MinReward {
		pts = e.cfg.MinReward
	}
	if pts > e.cfg.BasePoints {
		pts = e.cfg.BasePoints
	}
	return pts
}
