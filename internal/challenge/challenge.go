// Package challenge supplies the ticket batches a room is played with.
package challenge

import (
	"context"
	"errors"
	"fmt"

	"github.com/playperu/mergeclash/internal/mergeclash"
)

// MinValidRatio is the share of a generated batch that must validate for the
// batch to be used at all.
const MinValidRatio = 0.7

var (
	ErrUnknownTopic = errors.New("unknown topic")
	ErrLowQuality   = errors.New("too few valid tickets")
)

// Generator produces up to count tickets for a topic.
type Generator interface {
	Generate(ctx context.Context, topic mergeclash.Topic, count int) ([]mergeclash.Ticket, error)
}

// Accept drops invalid tickets and returns at most want of the rest. The batch
// is rejected when fewer than MinValidRatio of want survive.
func Accept(tickets []mergeclash.Ticket, want int) ([]mergeclash.Ticket, error) {
	valid := make([]mergeclash.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.Validate() == nil {
			valid = append(valid, t)
		}
	}
	if float64(len(valid)) < MinValidRatio*float64(want) {
		return nil, fmt.Errorf("%w: %d of %d", ErrLowQuality, len(valid), want)
	}
	if len(valid) > want {
		valid = valid[:want]
	}
	return valid, nil
}
