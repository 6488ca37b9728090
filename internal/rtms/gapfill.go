package rtms

import (
	"sort"
	"time"

	"github.com/dkeye/Relay/internal/core"
)

// maxFillFrames caps how much silence one gap may produce; anything longer
// is a stream restart, not a dropout worth masking.
const maxFillFrames = 50

// gapFiller splices synthetic silence frames into an audio stream when the
// inter-frame timestamp gap exceeds one frame interval. Per-participant
// streams may arrive interleaved on one connection, so the one-frame
// lookahead is kept per user: gaps are only ever measured between two
// frames of the same speaker, and spliced silence carries that speaker's
// identity. Output lags input by one frame per speaker.
type gapFiller struct {
	interval time.Duration
	pending  map[string]*core.AudioFrame
}

func newGapFiller(interval time.Duration) *gapFiller {
	return &gapFiller{
		interval: interval,
		pending:  make(map[string]*core.AudioFrame),
	}
}

// push accepts the next real frame and returns everything now ready to emit
// for that speaker: the previously held frame, plus silence for any detected
// gap before f.
func (g *gapFiller) push(f core.AudioFrame) []core.AudioFrame {
	prev, ok := g.pending[f.UserID]
	if !ok {
		held := f
		g.pending[f.UserID] = &held
		return nil
	}
	out := []core.AudioFrame{*prev}
	gap := f.Timestamp.Sub(prev.Timestamp)
	held := f
	g.pending[f.UserID] = &held
	if gap <= g.interval {
		return out
	}
	missing := int(gap/g.interval) - 1
	if missing > maxFillFrames {
		missing = maxFillFrames
	}
	for i := 1; i <= missing; i++ {
		out = append(out, core.AudioFrame{
			MeetingID: prev.MeetingID,
			UserID:    prev.UserID,
			UserName:  prev.UserName,
			Timestamp: prev.Timestamp.Add(time.Duration(i) * g.interval),
			Data:      make([]byte, len(prev.Data)),
			Synthetic: true,
		})
	}
	return out
}

// flush releases every held frame, ordered by user id for determinism.
// Called when the stream ends.
func (g *gapFiller) flush() []core.AudioFrame {
	if len(g.pending) == 0 {
		return nil
	}
	users := make([]string, 0, len(g.pending))
	for u := range g.pending {
		users = append(users, u)
	}
	sort.Strings(users)
	out := make([]core.AudioFrame, 0, len(users))
	for _, u := range users {
		out = append(out, *g.pending[u])
	}
	g.pending = make(map[string]*core.AudioFrame)
	return out
}
