package session

import (
	"cmp"
	"slices"
)

type Ranking struct {
	PlayerID     string  `json:"playerId"`
	Nickname     string  `json:"nickname"`
	Progress     int     `json:"progress"`
	TotalCorrect int     `json:"totalCorrect"`
	TotalWrong   int     `json:"totalWrong"`
	Accuracy     float64 `json:"accuracy"`
}

// Accuracy returns correct/(correct+wrong), or 0 when nothing was answered.
func Accuracy(correct, wrong int) float64 {
	if correct+wrong == 0 {
		return 0
	}
	return float64(correct) / float64(correct+wrong)
}

// Rank orders players by progress descending, then total wrong ascending. The
// player id breaks any remaining tie so every peer ranks identical registries
// identically. The first row is the winner.
func Rank(players []PlayerView) []Ranking {
	rows := make([]Ranking, 0, len(players))
	for _, p := range players {
		rows = append(rows, Ranking{
			PlayerID:     p.ID,
			Nickname:     p.Nickname,
			Progress:     p.Progress,
			TotalCorrect: p.TotalCorrect,
			TotalWrong:   p.TotalWrong,
			Accuracy:     Accuracy(p.TotalCorrect, p.TotalWrong),
		})
	}
	slices.SortFunc(rows, func(a, b Ranking) int {
		return cmp.Or(
			cmp.Compare(b.Progress, a.Progress),
			cmp.Compare(a.TotalWrong, b.TotalWrong),
			cmp.Compare(a.PlayerID, b.PlayerID),
		)
	})
	return rows
}
