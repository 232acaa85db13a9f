package app

import (
	"context"

	"github.com/rjboer/radarcore/internal/message"
)

// outcome is what a sub-application decided for one message.
type outcome struct {
	ack *message.Ack
	// handoff is a foreign config returned to the orchestrator; the actor
	// exits after depositing it.
	handoff *message.Config
	exit    bool
}

func reply(r message.Retval) outcome {
	return outcome{ack: &message.Ack{Retval: r}}
}

// subApp is the behavior run by an actor goroutine.
type subApp interface {
	handle(ctx context.Context, m message.Message) outcome
	// shutdown runs once when the actor exits, whatever the reason.
	shutdown()
}

// actor is the orchestrator's handle on a running sub-application.
type actor struct {
	mode    Mode
	inbox   chan message.Message
	handoff chan message.Config
	done    chan struct{}
}

func startActor(ctx context.Context, mode Mode, app subApp, mailbox int, emit func(context.Context, message.Ack) bool) *actor {
	a := &actor{
		mode:    mode,
		inbox:   make(chan message.Message, mailbox),
		handoff: make(chan message.Config, 1),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(a.done)
		defer app.shutdown()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-a.inbox:
				out := app.handle(ctx, m)
				if out.ack != nil && !emit(ctx, *out.ack) {
					return
				}
				if out.handoff != nil {
					a.handoff <- *out.handoff
					return
				}
				if out.exit {
					return
				}
			}
		}
	}()
	return a
}
