package peer

import (
	"context"
	"sync"
	"time"

	"github.com/playperu/mergeclash/internal/mergeclash"
	"github.com/playperu/mergeclash/internal/session"
)

const flushTimeout = 5 * time.Second

// outbox is an unbounded FIFO so the loop never blocks on the network.
type outbox struct {
	mu     sync.Mutex
	msgs   []session.Message
	notify chan struct{}
}

func newOutbox() *outbox {
	return &outbox{notify: make(chan struct{}, 1)}
}

func (o *outbox) push(msgs []session.Message) {
	o.mu.Lock()
	o.msgs = append(o.msgs, msgs...)
	o.mu.Unlock()
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *outbox) drain() []session.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := o.msgs
	o.msgs = nil
	return msgs
}

// publisher sends queued messages in order. A failed publish is logged and
// dropped: the local state already reflects it and is not rolled back.
func (p *Peer) publisher(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			p.publishAll(flushCtx, p.queue.drain())
			cancel()
			return ctx.Err()
		case <-p.queue.notify:
			p.publishAll(ctx, p.queue.drain())
		}
	}
}

func (p *Peer) publishAll(ctx context.Context, msgs []session.Message) {
	for _, msg := range msgs {
		payload, err := session.Encode(msg)
		if err != nil {
			p.logger.Error("encoding message", "kind", msg.Kind(), "error", err)
			continue
		}
		_, err = p.channel.Publish(ctx, msg.Kind(), payload)
		if end, ok := msg.(session.GameEnd); ok {
			p.logger.Info("declared game over", "reason", end.Reason, "winner", end.WinnerID, "published", err == nil)
			p.markFinished(ctx)
		}
	}
}

// markFinished is the winner's one-off side effect. The registry treats a
// repeated finish as a no-op, so a racing peer doing the same is harmless.
func (p *Peer) markFinished(ctx context.Context) {
	if err := p.registry.SetStatus(ctx, p.cfg.RoomCode, mergeclash.RoomFinished); err != nil {
		p.logger.Warn("marking room finished failed", "error", err)
	}
}
