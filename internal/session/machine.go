// Package session holds one peer's view of a match. A Machine reduces local
// actions and remote messages into that view and returns the messages the peer
// must publish. It is not safe for concurrent use; a single goroutine owns it.
package session

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/mergeclash/internal/conflict"
	"github.com/playperu/mergeclash/internal/mergeclash"
)

type Phase string

const (
	PhaseLobby           Phase = "LOBBY"
	PhaseCountdown       Phase = "COUNTDOWN"
	PhasePlaying         Phase = "PLAYING"
	PhaseConflicted      Phase = "CONFLICTED"
	PhaseFinishedWaiting Phase = "FINISHED_WAITING"
	PhaseGameOver        Phase = "GAME_OVER"
)

// Active reports whether the match clock runs in p.
func (p Phase) Active() bool {
	switch p {
	case PhasePlaying, PhaseConflicted, PhaseFinishedWaiting:
		return true
	}
	return false
}

var (
	ErrWrongPhase = errors.New("action not allowed in current phase")
	ErrNoTickets  = errors.New("no tickets")
)

// PlayerView is what a peer knows about one player. The entry for the peer
// itself is authoritative; all others are best-effort copies.
type PlayerView struct {
	ID           string    `json:"id"`
	Nickname     string    `json:"nickname"`
	Progress     int       `json:"progress"`
	Streak       int       `json:"streak"`
	Tokens       int       `json:"conflictsHeld"`
	TotalCorrect int       `json:"totalCorrect"`
	TotalWrong   int       `json:"totalWrong"`
	Conflicted   bool      `json:"isConflicted"`
	Immune       bool      `json:"isImmune"`
	ImmuneUntil  time.Time `json:"immuneUntil,omitzero"`
	Online       bool      `json:"isOnline"`
}

type ActiveConflict struct {
	FromPlayerID string             `json:"fromPlayerId"`
	FromNickname string             `json:"fromNickname"`
	Challenge    conflict.Challenge `json:"challenge"`
}

// Setup is what a peer needs to start playing, usually read from the room.
type Setup struct {
	Tickets   []mergeclash.Ticket
	Duration  time.Duration
	StartedAt time.Time
	Players   []mergeclash.Player
}

type Machine struct {
	self  string
	clock clockwork.Clock
	gen   *conflict.Generator

	phase     Phase
	players   map[string]*PlayerView
	finished  map[string]struct{}
	tickets   []mergeclash.Ticket
	index     int
	remaining time.Duration
	countdown int
	active    *ActiveConflict
	feed      *Feed
	result    *GameEnd
	declared  bool
}

type Option func(*Machine)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Machine) {
		m.clock = clock
	}
}

func WithGenerator(gen *conflict.Generator) Option {
	return func(m *Machine) {
		m.gen = gen
	}
}

// New returns a machine in LOBBY whose registry holds only the local player.
func New(selfID, nickname string, opts ...Option) *Machine {
	m := &Machine{
		self:     selfID,
		clock:    clockwork.NewRealClock(),
		phase:    PhaseLobby,
		players:  make(map[string]*PlayerView),
		finished: make(map[string]struct{}),
		feed:     NewFeed(FeedSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.gen == nil {
		m.gen = conflict.NewGenerator()
	}
	m.players[selfID] = &PlayerView{ID: selfID, Nickname: nickname, Online: true}
	return m
}

func (m *Machine) me() *PlayerView {
	return m.players[m.self]
}

func (m *Machine) Phase() Phase { return m.phase }

func (m *Machine) SelfID() string { return m.self }

// Countdown returns the seconds left on the lobby countdown.
func (m *Machine) Countdown() int { return m.countdown }

func (m *Machine) log(typ ActivityType, playerID, format string, args ...any) {
	m.feed.Add(ActivityEntry{
		Type:     typ,
		Message:  fmt.Sprintf(format, args...),
		PlayerID: playerID,
		At:       m.clock.Now(),
	})
}

// StartCountdown moves the lobby into COUNTDOWN and returns the announcement.
func (m *Machine) StartCountdown(seconds int) ([]Message, error) {
	msg := CountdownStart{Seconds: seconds}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	if m.phase != PhaseLobby {
		return nil, fmt.Errorf("%w: %s", ErrWrongPhase, m.phase)
	}
	m.phase = PhaseCountdown
	m.countdown = seconds
	return []Message{msg}, nil
}

func (m *Machine) CancelCountdown() ([]Message, error) {
	if m.phase != PhaseCountdown {
		return nil, fmt.Errorf("%w: %s", ErrWrongPhase, m.phase)
	}
	m.phase = PhaseLobby
	m.countdown = 0
	return []Message{CountdownCancel{}}, nil
}

// Start enters PLAYING. Remaining time is the configured duration minus what
// has already elapsed since StartedAt, so late joiners share the same deadline.
func (m *Machine) Start(s Setup) error {
	if m.phase != PhaseLobby && m.phase != PhaseCountdown {
		return fmt.Errorf("%w: %s", ErrWrongPhase, m.phase)
	}
	if len(s.Tickets) == 0 {
		return ErrNoTickets
	}
	remaining := s.Duration
	if !s.StartedAt.IsZero() {
		elapsed := m.clock.Since(s.StartedAt).Truncate(time.Second)
		remaining = max(0, s.Duration-max(0, elapsed))
	}

	m.tickets = slices.Clone(s.Tickets)
	m.index = 0
	m.remaining = remaining
	m.countdown = 0
	m.phase = PhasePlaying
	m.Sync(s.Players)
	m.log(ActivityGameStart, "", "Game started")
	return nil
}

// Sync merges a room's player list into the registry.
func (m *Machine) Sync(players []mergeclash.Player) {
	for _, p := range players {
		m.upsert(PlayerJoined{
			PlayerID:     p.ID,
			Nickname:     p.Nickname,
			Progress:     p.Progress,
			Streak:       p.Streak,
			TotalCorrect: p.TotalCorrect,
			TotalWrong:   p.TotalWrong,
		})
	}
}

// CurrentTicket returns the ticket awaiting an answer.
func (m *Machine) CurrentTicket() (mergeclash.Ticket, bool) {
	if m.phase != PhasePlaying || m.index >= len(m.tickets) {
		return mergeclash.Ticket{}, false
	}
	return m.tickets[m.index], true
}

// SubmitAnswer grades the current ticket and advances to the next one.
// Progress advances whether or not the answer is correct.
func (m *Machine) SubmitAnswer(answer mergeclash.Answer) (bool, []Message, error) {
	ticket, ok := m.CurrentTicket()
	if !ok {
		return false, nil, fmt.Errorf("%w: %s", ErrWrongPhase, m.phase)
	}
	me := m.me()
	correct := ticket.Check(answer)

	me.Streak, me.Tokens = conflict.Score(me.Streak, me.Tokens, correct)
	if correct {
		me.TotalCorrect++
	} else {
		me.TotalWrong++
	}
	m.index++
	me.Progress = max(me.Progress, progress(m.index, len(m.tickets)))

	var out []Message
	out = append(out, m.progressUpdate())
	if correct && me.Streak%conflict.StreakMilestone == 0 {
		out = append(out, Activity{
			ActivityType: ActivityStreak,
			Message:      fmt.Sprintf("%s is on a %dx streak!", me.Nickname, me.Streak),
		})
	}
	if correct {
		m.log(ActivityCorrectAnswer, m.self, "Correct answer")
	} else {
		m.log(ActivityWrongAnswer, m.self, "Wrong answer")
	}

	if m.index >= len(m.tickets) {
		m.phase = PhaseFinishedWaiting
		m.finished[m.self] = struct{}{}
		out = append(out, PlayerFinished{PlayerID: m.self, Nickname: me.Nickname})
		m.log(ActivityCorrectAnswer, m.self, "You finished all tickets!")
	}
	out = append(out, m.Evaluate()...)
	return correct, out, nil
}

func progress(answered, total int) int {
	return min(100, int(math.Round(100*float64(answered)/float64(total))))
}

func (m *Machine) progressUpdate() ProgressUpdate {
	me := m.me()
	return ProgressUpdate{
		PlayerID:      me.ID,
		Progress:      me.Progress,
		Streak:        me.Streak,
		TotalCorrect:  me.TotalCorrect,
		TotalWrong:    me.TotalWrong,
		ConflictsHeld: me.Tokens,
	}
}

// CanThrow reports whether the local player may spend a token now.
func (m *Machine) CanThrow() bool {
	me := m.me()
	_, done := m.finished[m.self]
	return m.phase == PhasePlaying && conflict.CanThrow(me.Streak, me.Tokens, done)
}

// Targets returns the ids the local player may currently throw a conflict at,
// sorted for stable presentation.
func (m *Machine) Targets() ([]string, error) {
	candidates := make([]conflict.Candidate, 0, len(m.players))
	for _, id := range m.playerIDs() {
		p := m.players[id]
		candidates = append(candidates, conflict.Candidate{ID: p.ID, Conflicted: p.Conflicted, Immune: m.immune(p)})
	}
	return conflict.Targets(m.self, candidates)
}

// immune reports whether p is shielded right now. The cached flag is only
// cleared on the next tick, so the expiry is checked here as well.
func (m *Machine) immune(p *PlayerView) bool {
	return p.Immune && m.clock.Now().Before(p.ImmuneUntil)
}

// ThrowConflict spends the local token on target. The token and streak are
// consumed regardless of what the target does with it.
func (m *Machine) ThrowConflict(targetID string) ([]Message, error) {
	if !m.CanThrow() {
		return nil, conflict.ErrNotEligible
	}
	targets, err := m.Targets()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(targets, targetID) {
		return nil, fmt.Errorf("%w: %s", conflict.ErrInvalidTarget, targetID)
	}

	me := m.me()
	target := m.players[targetID]
	challenge := m.gen.Next(mergeclash.HardTickets(m.tickets))
	me.Streak, me.Tokens = conflict.Spend()
	target.Conflicted = true

	m.log(ActivityConflictThrow, m.self, "You threw a conflict at %s!", target.Nickname)
	return []Message{
		ConflictThrow{
			FromPlayerID: m.self,
			FromNickname: me.Nickname,
			ToPlayerID:   targetID,
			ToNickname:   target.Nickname,
			ConflictType: challenge.Kind,
			Challenge:    challenge,
		},
		m.progressUpdate(),
	}, nil
}

// ActiveConflict returns the conflict blocking the local player, if any.
func (m *Machine) ActiveConflict() (ActiveConflict, bool) {
	if m.active == nil {
		return ActiveConflict{}, false
	}
	return *m.active, true
}

// ResolveConflict checks answer against the active challenge. A wrong attempt
// leaves the peer CONFLICTED with no other penalty.
func (m *Machine) ResolveConflict(answer mergeclash.Answer) (bool, []Message, error) {
	if m.phase != PhaseConflicted || m.active == nil {
		return false, nil, fmt.Errorf("%w: %s", ErrWrongPhase, m.phase)
	}
	if !m.active.Challenge.Resolve(answer) {
		return false, nil, nil
	}

	now := m.clock.Now()
	me := m.me()
	m.active = nil
	m.phase = PhasePlaying
	me.Conflicted = false
	me.Immune = true
	me.ImmuneUntil = now.Add(conflict.ImmunityWindow)

	m.log(ActivityConflictResolve, m.self, "You resolved the conflict")
	return true, []Message{
		ConflictResolve{PlayerID: m.self, ResolvedAt: now.UnixMilli()},
		Activity{
			ActivityType: ActivityConflictResolve,
			Message:      fmt.Sprintf("%s resolved their conflict!", me.Nickname),
		},
	}, nil
}

// Tick advances the match clock by one second, expires immunity windows and
// evaluates termination.
func (m *Machine) Tick() []Message {
	switch {
	case m.phase == PhaseCountdown:
		m.countdown = max(0, m.countdown-1)
	case m.phase.Active():
		m.remaining = max(0, m.remaining-time.Second)
	}

	now := m.clock.Now()
	for _, p := range m.players {
		if p.Immune && !now.Before(p.ImmuneUntil) {
			p.Immune = false
			p.ImmuneUntil = time.Time{}
		}
	}
	return m.Evaluate()
}

// Remaining returns the time left in the match.
func (m *Machine) Remaining() time.Duration { return m.remaining }

// Apply folds a message sent by senderID into the local view. It never
// produces outbound messages; callers run Evaluate after a batch.
func (m *Machine) Apply(senderID string, msg Message) error {
	if m.phase == PhaseGameOver {
		return nil
	}

	switch msg := msg.(type) {
	case ProgressUpdate:
		if msg.PlayerID == m.self {
			return nil
		}
		p := m.view(msg.PlayerID)
		p.Progress = max(p.Progress, msg.Progress)
		p.Streak = msg.Streak
		p.TotalCorrect = msg.TotalCorrect
		p.TotalWrong = msg.TotalWrong
		p.Tokens = msg.ConflictsHeld
		p.Conflicted = false

	case ConflictThrow:
		m.receiveConflict(msg)

	case ConflictResolve:
		if msg.PlayerID == m.self {
			return nil
		}
		p := m.view(msg.PlayerID)
		p.Conflicted = false
		p.Immune = true
		p.ImmuneUntil = m.clock.Now().Add(conflict.ImmunityWindow)
		m.log(ActivityConflictResolve, p.ID, "%s resolved their conflict", p.Nickname)

	case GameStart:
		m.log(ActivityGameStart, senderID, "Host started the game")

	case GameEnd:
		m.declared = true
		m.phase = PhaseGameOver
		m.result = &msg
		m.log(ActivityGameEnd, senderID, "Game over (%s)", msg.Reason)

	case Activity:
		m.log(msg.ActivityType, senderID, "%s", msg.Message)

	case PlayerJoined:
		if m.upsert(msg) {
			m.log(ActivityPlayerJoined, msg.PlayerID, "%s joined", msg.Nickname)
		}

	case PlayerLeft:
		id := cmp.Or(msg.PlayerID, senderID)
		if id == m.self {
			return nil
		}
		if p, ok := m.players[id]; ok {
			delete(m.players, id)
			m.log(ActivityPlayerLeft, id, "%s left the game", p.Nickname)
		}

	case PlayerFinished:
		p := m.view(msg.PlayerID)
		if p.Nickname == "" {
			p.Nickname = msg.Nickname
		}
		if _, dup := m.finished[msg.PlayerID]; !dup {
			m.finished[msg.PlayerID] = struct{}{}
			m.log(ActivityCorrectAnswer, msg.PlayerID, "%s finished all tickets!", p.Nickname)
		}

	case CountdownStart:
		if m.phase == PhaseLobby {
			m.phase = PhaseCountdown
			m.countdown = msg.Seconds
		}

	case CountdownCancel:
		if m.phase == PhaseCountdown {
			m.phase = PhaseLobby
			m.countdown = 0
		}

	default:
		return fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
	return nil
}

func (m *Machine) receiveConflict(msg ConflictThrow) {
	if msg.ToPlayerID != m.self {
		if p, ok := m.players[msg.ToPlayerID]; ok {
			p.Conflicted = true
		}
		m.log(ActivityConflictThrow, msg.FromPlayerID, "%s -> %s", msg.FromNickname, cmp.Or(msg.ToNickname, "someone"))
		return
	}

	me := m.me()
	if _, done := m.finished[m.self]; done {
		m.log(ActivityConflictThrow, msg.FromPlayerID, "%s tried to throw a conflict at you (blocked - already finished)", msg.FromNickname)
		return
	}
	if m.immune(me) {
		m.log(ActivityConflictThrow, msg.FromPlayerID, "%s tried to throw a conflict at you (blocked - immune)", msg.FromNickname)
		return
	}
	if m.phase != PhasePlaying {
		return
	}

	challenge := msg.Challenge
	if challenge.Kind == conflict.KindPuzzle && challenge.Ticket == nil {
		// Rebind by id when the thrower left the ticket out.
		for _, t := range m.tickets {
			if t.ID == challenge.Content {
				challenge.Ticket = &t
				break
			}
		}
	}
	m.active = &ActiveConflict{
		FromPlayerID: msg.FromPlayerID,
		FromNickname: msg.FromNickname,
		Challenge:    challenge,
	}
	m.phase = PhaseConflicted
	me.Conflicted = true
	m.log(ActivityConflictThrow, msg.FromPlayerID, "%s threw a conflict at you!", msg.FromNickname)
}

// view returns the cached entry for id, registering a minimal one if the
// player is not known yet.
func (m *Machine) view(id string) *PlayerView {
	p, ok := m.players[id]
	if !ok {
		p = &PlayerView{ID: id, Online: true}
		m.players[id] = p
	}
	return p
}

// upsert overwrites the cached copy of a remote player. For the local player
// only a missing nickname is filled in. It reports whether the player was new.
func (m *Machine) upsert(j PlayerJoined) bool {
	_, known := m.players[j.PlayerID]
	p := m.view(j.PlayerID)
	if j.PlayerID == m.self {
		if p.Nickname == "" {
			p.Nickname = j.Nickname
		}
		return false
	}
	if j.Nickname != "" {
		p.Nickname = j.Nickname
	}
	p.Progress = max(p.Progress, j.Progress)
	p.Streak = j.Streak
	p.TotalCorrect = j.TotalCorrect
	p.TotalWrong = j.TotalWrong
	p.Online = true
	return !known
}

func (m *Machine) playerIDs() []string {
	ids := make([]string, 0, len(m.players))
	for id := range m.players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Snapshot is a copy of the local view, safe to hand to other goroutines.
type Snapshot struct {
	Phase     Phase           `json:"phase"`
	Self      PlayerView      `json:"self"`
	Players   []PlayerView    `json:"players"`
	Finished  []string        `json:"finished"`
	Index     int             `json:"currentTicketIndex"`
	Total     int             `json:"totalTickets"`
	Remaining time.Duration   `json:"timeRemaining"`
	Countdown int             `json:"countdownSeconds,omitempty"`
	Conflict  *ActiveConflict `json:"currentConflict,omitempty"`
	Activity  []ActivityEntry `json:"activityFeed"`
	Result    *GameEnd        `json:"gameResult,omitempty"`
	CanThrow  bool            `json:"canThrowConflict"`
}

func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		Phase:     m.phase,
		Self:      *m.me(),
		Index:     m.index,
		Total:     len(m.tickets),
		Remaining: m.remaining,
		Countdown: m.countdown,
		Activity:  m.feed.Entries(),
		CanThrow:  m.CanThrow(),
	}
	for _, id := range m.playerIDs() {
		s.Players = append(s.Players, *m.players[id])
	}
	for id := range m.finished {
		s.Finished = append(s.Finished, id)
	}
	slices.Sort(s.Finished)
	if m.active != nil {
		c := *m.active
		s.Conflict = &c
	}
	if m.result != nil {
		r := *m.result
		r.Rankings = slices.Clone(r.Rankings)
		s.Result = &r
	}
	return s
}
