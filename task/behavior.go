package task

import (
	"context"

	"github.com/vinayprograms/taskparty/channel"
)

// Player is the participant a pairing runs against.
type Player interface {
	ID() string
	Events() channel.Events
}

// Behavior is the kind-specific part of a task.
//
// Both methods run on the player's channel goroutine and must not block.
type Behavior interface {
	// Run is called once the device acknowledged the start. ctx is
	// cancelled when the attempt ends for any reason.
	Run(ctx context.Context, p Player)

	// OnFinished is called when the device reports the player left the
	// task UI, whether or not they aborted.
	OnFinished(p Player, aborted bool)
}

// Completer is implemented by behaviours that react to completion.
type Completer interface {
	OnComplete(p Player)
}

// Factory builds the behaviour for one task descriptor. It returns an
// INVALID_INPUT error when the descriptor's params are unusable.
type Factory func(d Descriptor) (Behavior, error)

// Passive is a behaviour with no kind-specific interaction.
type Passive struct{}

func (Passive) Run(context.Context, Player) {}

func (Passive) OnFinished(Player, bool) {}
