package session

// Termination is leaderless. Every peer evaluates the same predicates over its
// own view; the first to fire publishes a game_end and every other peer adopts
// the first game_end it observes. A latch keeps a peer from declaring twice.

// Evaluate checks the termination predicates and, on the first one to fire,
// moves to GAME_OVER and returns the game_end to publish.
func (m *Machine) Evaluate() []Message {
	if m.declared || !m.phase.Active() {
		return nil
	}
	reason, ok := m.terminationReason()
	if !ok {
		return nil
	}
	return []Message{m.declare(reason)}
}

func (m *Machine) terminationReason() (Reason, bool) {
	if m.allFinished() {
		return ReasonWinner, true
	}
	if m.remaining <= 0 {
		return ReasonTimeout, true
	}
	return "", false
}

// allFinished reports whether every player in the registry is in the finished
// set. Players that left no longer count.
func (m *Machine) allFinished() bool {
	if len(m.players) == 0 {
		return false
	}
	for id := range m.players {
		if _, ok := m.finished[id]; !ok {
			return false
		}
	}
	return true
}

func (m *Machine) declare(reason Reason) GameEnd {
	m.declared = true

	// The local entry is never overwritten by remote events, so it already
	// carries this peer's freshest stats.
	views := make([]PlayerView, 0, len(m.players))
	for _, p := range m.players {
		views = append(views, *p)
	}
	end := GameEnd{Reason: reason, Rankings: Rank(views)}
	if len(end.Rankings) > 0 {
		end.WinnerID = end.Rankings[0].PlayerID
	}

	m.phase = PhaseGameOver
	m.result = &end
	m.active = nil
	if end.WinnerID == m.self {
		m.log(ActivityWin, m.self, "You won!")
	}
	m.log(ActivityGameEnd, m.self, "Game over (%s)", reason)
	return end
}

// Declared reports whether the match has a result, local or remote.
func (m *Machine) Declared() bool { return m.declared }

// Result returns the game_end adopted by this peer.
func (m *Machine) Result() (GameEnd, bool) {
	if m.result == nil {
		return GameEnd{}, false
	}
	return *m.result, true
}
