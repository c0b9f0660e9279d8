// Package conflict implements the disruption-token economy: streak based token
// accrual, throw eligibility, target selection, challenge generation and
// challenge resolution. Everything here is pure; callers own the player state.
package conflict

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/playperu/mergeclash/internal/mergeclash"
)

const (
	// StreakMilestone is the streak length that earns a token and the minimum
	// streak required to spend one.
	StreakMilestone = 3
	// MaxTokens is the most tokens a player may hold.
	MaxTokens = 1
	// ImmunityWindow is how long a player cannot be targeted after resolving.
	ImmunityWindow = 30 * time.Second
	// RetypeThreshold is the minimum positional accuracy that resolves a retype task.
	RetypeThreshold = 0.85
)

var (
	ErrNotEligible       = errors.New("not eligible to throw a conflict")
	ErrNoEligibleTargets = errors.New("no eligible targets")
	ErrInvalidTarget     = errors.New("invalid conflict target")
)

// Kind is the kind of challenge a conflicted player must clear.
type Kind string

const (
	KindPuzzle Kind = "hard_puzzle"
	KindRetype Kind = "silly_task"
)

// Challenge is what a conflicted player has to solve. For puzzles Content is
// the bound ticket id; for retype tasks it is the text to reproduce.
type Challenge struct {
	Kind    Kind               `json:"type"`
	Content string             `json:"content"`
	Ticket  *mergeclash.Ticket `json:"ticket,omitempty"`
}

// Score applies one answer to a streak and token count and returns the new
// values. A wrong answer resets the streak and forfeits a held token; a correct
// answer that lands on a milestone grants a token when none is held.
func Score(streak, tokens int, correct bool) (int, int) {
	if !correct {
		return 0, 0
	}
	streak++
	if streak%StreakMilestone == 0 && tokens == 0 {
		tokens = MaxTokens
	}
	return streak, tokens
}

// CanThrow reports whether a player may spend a token.
func CanThrow(streak, tokens int, finished bool) bool {
	return streak >= StreakMilestone && tokens > 0 && !finished
}

// Spend returns the streak and token count after using a token. The cost is
// paid regardless of what happens to the target.
func Spend() (streak, tokens int) {
	return 0, 0
}

// Candidate is the thrower's view of a potential target.
type Candidate struct {
	ID         string
	Conflicted bool
	Immune     bool
}

// ValidTarget reports whether c can be targeted by self.
func ValidTarget(self string, c Candidate) bool {
	return c.ID != self && !c.Conflicted && !c.Immune
}

// Targets filters candidates down to valid targets, preserving order.
// It returns ErrNoEligibleTargets when none remain.
func Targets(self string, candidates []Candidate) ([]string, error) {
	var ids []string
	for _, c := range candidates {
		if ValidTarget(self, c) {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoEligibleTargets
	}
	return ids, nil
}

// Phrases are the retype tasks.
var Phrases = []string{
	"// TODO: Fix this before the deadline that was yesterday",
	"// I don't know why this works but please don't touch it",
	"// This code was written at 3 AM. You've been warned.",
	"// Dear future developer, I'm sorry. Sincerely, past developer.",
	"// If you're reading this, the code below is a masterpiece of spaghetti",
	"// Temporary fix applied 3 years ago. Still here. Still temporary.",
	"// Magic number: 42. Because that's the answer to everything.",
	"// This function does exactly what you think it doesn't do",
	"// The following code is not a bug, it's an undocumented feature",
	"// Abandon all hope, ye who enter this function",
}

// Generator draws challenges. It is not safe for concurrent use.
type Generator struct {
	rng     *rand.Rand
	phrases []string
}

type Option func(*Generator)

// WithRand sets the random source, for reproducible draws.
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = rng
	}
}

// WithPhrases replaces the retype pool. An empty pool keeps the default.
func WithPhrases(phrases []string) Option {
	return func(g *Generator) {
		if len(phrases) > 0 {
			g.phrases = phrases
		}
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		phrases: Phrases,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next picks a puzzle or a retype task with equal probability. Without hard
// tickets it always picks a retype task.
func (g *Generator) Next(hard []mergeclash.Ticket) Challenge {
	if g.rng.IntN(2) == 0 && len(hard) > 0 {
		t := hard[g.rng.IntN(len(hard))]
		return Challenge{Kind: KindPuzzle, Content: t.ID, Ticket: &t}
	}
	return Challenge{Kind: KindRetype, Content: g.phrases[g.rng.IntN(len(g.phrases))]}
}

// Resolve reports whether answer clears the challenge. Wrong attempts carry no
// penalty and may be repeated.
func (c Challenge) Resolve(answer mergeclash.Answer) bool {
	switch c.Kind {
	case KindPuzzle:
		if c.Ticket == nil || len(answer) != len(c.Ticket.CorrectAnswer) {
			return false
		}
		for i, want := range c.Ticket.CorrectAnswer {
			if !strings.EqualFold(strings.TrimSpace(answer[i]), strings.TrimSpace(want)) {
				return false
			}
		}
		return true
	case KindRetype:
		return Accuracy(c.Content, answer.Text()) >= RetypeThreshold
	}
	return false
}

// Accuracy is the share of target positions matched by typed, character by
// character.
func Accuracy(target, typed string) float64 {
	want := []rune(target)
	if len(want) == 0 {
		return 0
	}
	got := []rune(typed)
	matched := 0
	for i, r := range want {
		if i < len(got) && got[i] == r {
			matched++
		}
	}
	return float64(matched) / float64(len(want))
}
