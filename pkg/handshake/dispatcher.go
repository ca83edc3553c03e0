// dispatcher.go implements a message-driven state machine where each state
// declares the message types it is willing to receive and the Dispatcher
// enforces that before handing the message to the state.
package handshake

import (
	"github.com/kemtls-go/kemtls-client/internal/constants"
	qerrors "github.com/kemtls-go/kemtls-client/internal/errors"
	"github.com/kemtls-go/kemtls-client/pkg/wire"
)

// State is one node of the client handshake state machine. A state owns
// nothing the Context doesn't already hold; transitioning means returning
// the next State and letting the old one be garbage collected, which is
// how this package implements "ownership transfer" instead of a class
// hierarchy.
type State interface {
	// ExpectedMessages lists the handshake/alert message types this state
	// is willing to receive next. The Dispatcher rejects anything else
	// with unexpected_message before calling Handle.
	ExpectedMessages() []constants.HandshakeType

	// Handle processes one message and returns the next state, or a
	// terminal state if the handshake is complete for this state, or a
	// fatal error if the message failed validation.
	Handle(cx *Context, msg wire.Message) (State, error)
}

// Terminal is returned by states that do not expect any further
// handshake messages from the dispatch loop (ApplicationData is carried by
// the IOHarness and never enters this loop).
type Terminal struct{}

func (Terminal) ExpectedMessages() []constants.HandshakeType { return nil }

func (Terminal) Handle(cx *Context, msg wire.Message) (State, error) {
	return nil, qerrors.NewInappropriateMessage(nil, msg.Type)
}

// Dispatcher drives a Context through its States, enforcing the
// ExpectedMessages ordering rule (sending unexpected_message itself when a
// message breaks it) and emitting metrics via the Observer collaborator.
// A state that rejects a message sends its own alert through FailWith
// before returning the error.
type Dispatcher struct {
	cx    *Context
	state State
}

// NewDispatcher starts a dispatcher in the given initial state (normally
// the state EnterInitial returns).
func NewDispatcher(cx *Context, initial State) *Dispatcher {
	cx.Observer.HandshakeStarted()
	return &Dispatcher{cx: cx, state: initial}
}

// Advance delivers one message to the current state after checking it
// against ExpectedMessages, and installs the returned state as current.
func (d *Dispatcher) Advance(msg wire.Message) error {
	if !typeAllowed(d.state.ExpectedMessages(), msg.Type) {
		err := qerrors.NewInappropriateMessage(d.state.ExpectedMessages(), msg.Type)
		d.cx.Observer.HandshakeFailed()
		return d.cx.FailWith(err)
	}

	next, err := d.state.Handle(d.cx, msg)
	if err != nil {
		d.cx.Observer.HandshakeFailed()
		return err
	}

	d.cx.Observer.RecordStateTransition()
	d.state = next
	return nil
}

// Current returns the dispatcher's current state, for tests and for a
// caller that wants to know when ExpectTLS13Traffic has been reached.
func (d *Dispatcher) Current() State {
	return d.state
}

func typeAllowed(allowed []constants.HandshakeType, typ constants.HandshakeType) bool {
	for _, t := range allowed {
		if t == typ {
			return true
		}
	}
	return false
}
