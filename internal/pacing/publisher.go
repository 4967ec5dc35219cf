package pacing

import (
	"context"
	"sync/atomic"

	"github.com/babelcloud/holocast/internal/protocol"
	"github.com/babelcloud/holocast/internal/util"
)

// Publisher decouples feedback from the capture loop. Publish never
// blocks: when the buffer is full the report is dropped.
type Publisher struct {
	ch      chan protocol.Feedback
	send    func(context.Context, protocol.Feedback) error
	dropped atomic.Int64
}

func NewPublisher(buffer int, send func(context.Context, protocol.Feedback) error) *Publisher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Publisher{ch: make(chan protocol.Feedback, buffer), send: send}
}

func (p *Publisher) Publish(fb protocol.Feedback) {
	select {
	case p.ch <- fb:
	default:
		p.dropped.Add(1)
		util.GetLogger().Debug("feedback dropped, publisher busy", "fps", fb.FPS)
	}
}

// Dropped reports how many reports were discarded.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Run delivers queued feedback until ctx is done. Delivery failures are
// logged and forgotten.
func (p *Publisher) Run(ctx context.Context) {
	logger := util.GetLogger()
	for {
		select {
		case <-ctx.Done():
			return
		case fb := <-p.ch:
			if err := p.send(ctx, fb); err != nil {
				logger.Warn("feedback not delivered", "fps", fb.FPS, "error", err)
			}
		}
	}
}
