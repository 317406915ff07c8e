// Package feed reads payout_update frames from upstream sources and hands
// them to a preview dispatcher.
package feed

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/phenomenon0/propslip/pkg/preview"
)

// Source delivers raw frames, in order, until ctx is done or the source fails.
type Source interface {
	Name() string
	Run(ctx context.Context, handle func(frame []byte)) error
}

// Recorder receives per-source frame counts. pkg/metrics implements it.
type Recorder interface {
	RecordFeedFrame(source string)
	RecordFeedError(source string)
}

// Pump connects sources to a dispatcher.
type Pump struct {
	dispatcher *preview.Dispatcher
	rec        Recorder
}

// NewPump creates a pump. rec may be nil.
func NewPump(d *preview.Dispatcher, rec Recorder) *Pump {
	return &Pump{dispatcher: d, rec: rec}
}

// Run runs src until ctx is done or it fails. A source ending because ctx
// was cancelled is not an error.
func (p *Pump) Run(ctx context.Context, src Source) error {
	name := src.Name()
	log.Info().Str("source", name).Msg("feed: starting")

	err := src.Run(ctx, func(frame []byte) {
		if p.rec != nil {
			p.rec.RecordFeedFrame(name)
		}
		p.dispatcher.Handle(frame)
	})

	if err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		if p.rec != nil {
			p.rec.RecordFeedError(name)
		}
		log.Error().Err(err).Str("source", name).Msg("feed: source stopped")
		return err
	}
	log.Info().Str("source", name).Msg("feed: stopped")
	return nil
}
