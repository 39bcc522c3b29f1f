package transport

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/twentyone/internal/protocol"
)

const eventBufferSize = 256

var (
	ErrDisconnected   = protocol.NewError(protocol.KindDisconnected, "disconnected")
	ErrRequestPending = protocol.NewError(protocol.KindForbidden, "another lobby request is pending")
	ErrNoReply        = protocol.NewError(protocol.KindTimeout, "no reply from lobby owner")
)

// Dispatcher turns inbound messages into events for a transport consumer
// and pairs lobby replies with the request awaiting them.
type Dispatcher struct {
	events chan Event
	logger *log.Logger

	mu      sync.Mutex
	id      string
	pending chan protocol.Message
	closed  bool
	done    chan struct{}
}

// NewDispatcher creates a dispatcher with a buffered event stream
func NewDispatcher(logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		events: make(chan Event, eventBufferSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Events returns the event stream. It is closed after the terminal
// Disconnected event.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// ID returns the member id assigned by the registry owner
func (d *Dispatcher) ID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// SetID records the member id
func (d *Dispatcher) SetID(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.id = id
}

// lobbyReplyKinds are the error kinds a create or join can be refused
// with. Other errors, such as a ProtocolError for an earlier frame, are
// only emitted as events.
var lobbyReplyKinds = map[protocol.ErrorKind]bool{
	protocol.KindNotFound:   true,
	protocol.KindFull:       true,
	protocol.KindForbidden:  true,
	protocol.KindNotInLobby: true,
	protocol.KindInternal:   true,
}

func (d *Dispatcher) reply(msg protocol.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending <- msg
		d.pending = nil
	}
}

// Deliver routes one inbound message
func (d *Dispatcher) Deliver(msg protocol.Message) {
	if w, ok := msg.(*protocol.Welcome); ok {
		d.SetID(w.ID)
		return
	}

	switch m := msg.(type) {
	case *protocol.LobbyInfo:
		d.reply(msg)
	case *protocol.ErrorMessage:
		if lobbyReplyKinds[m.Kind] {
			d.reply(msg)
		}
	}

	if ev, ok := FromMessage(msg); ok {
		d.Emit(ev)
	}
}

// Emit publishes an event. Events are dropped, with a warning, when the
// consumer has fallen a full buffer behind.
func (d *Dispatcher) Emit(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	select {
	case d.events <- ev:
	default:
		d.logger.Warn("Event buffer full, dropping event", "kind", ev.Kind())
	}
}

// Await registers for the next lobby reply, runs send and waits for the
// reply. An error reply is returned as a typed error.
func (d *Dispatcher) Await(ctx context.Context, send func() error) (*protocol.LobbyInfo, error) {
	reply := make(chan protocol.Message, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDisconnected
	}
	if d.pending != nil {
		d.mu.Unlock()
		return nil, ErrRequestPending
	}
	d.pending = reply
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		if d.pending == reply {
			d.pending = nil
		}
		d.mu.Unlock()
	}()

	if err := send(); err != nil {
		return nil, err
	}

	select {
	case msg := <-reply:
		switch m := msg.(type) {
		case *protocol.LobbyInfo:
			return m, nil
		case *protocol.ErrorMessage:
			return nil, protocol.FromWire(m)
		default:
			return nil, protocol.NewError(protocol.KindProtocolError, "unexpected reply %s", msg.MessageType())
		}
	case <-ctx.Done():
		return nil, ErrNoReply
	case <-d.done:
		return nil, ErrDisconnected
	}
}

// Close emits the terminal Disconnected event and closes the stream
func (d *Dispatcher) Close(reason error) {
	d.Emit(Disconnected{Err: reason})

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.done)
	close(d.events)
}

// Done is closed once the dispatcher has shut down
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
