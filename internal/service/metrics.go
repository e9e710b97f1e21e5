package service

import (
	"time"

	"github.com/casalena404/crypto-chess/internal/model"
)

// Recorder receives business events for instrumentation.
// metrics.Collector is the production implementation.
type Recorder interface {
	GameCreated(source string)
	MoveApplied()
	GameEnded(result model.Result)
	MatchMade(wait time.Duration)
	TicketsQueued(n int)
	TicketsEvicted(n int)
}

// Game creation sources, used as a metric label.
const (
	SourceMatchmaking = "matchmaking"
	SourceInvite      = "invite"
)

type nopRecorder struct{}

func (nopRecorder) GameCreated(string) {}
func (nopRecorder) MoveApplied() {}
func (nopRecorder) GameEnded(model.Result) {}
func (nopRecorder) MatchMade(time.Duration) {}
func (nopRecorder) TicketsQueued(int) {}
func (nopRecorder) TicketsEvicted(int) {}

func orNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
