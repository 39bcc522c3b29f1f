package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"

	"github.com/lox/twentyone/internal/protocol"
)

// DefaultConnectTimeout bounds how long a connection may take to open
const DefaultConnectTimeout = 12 * time.Second

var ErrTimeout = protocol.NewError(protocol.KindTimeout, "connection attempt timed out")

type dialResult struct {
	ws   *websocket.Conn
	resp *http.Response
	err  error
}

// Dial opens a websocket to url, failing with ErrTimeout if the channel is
// not open within timeout. Handshake refusals map onto error kinds:
// 404 is NotFound, 409 is Full.
func Dial(ctx context.Context, url string, clock quartz.Clock, timeout time.Duration) (*websocket.Conn, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan dialResult, 1)
	go func() {
		ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		results <- dialResult{ws: ws, resp: resp, err: err}
	}()

	expired := make(chan struct{})
	timer := clock.AfterFunc(timeout, func() { close(expired) }, "dial")
	defer timer.Stop()

	select {
	case r := <-results:
		return handshakeResult(r)
	case <-expired:
		abandon(results)
		return nil, ErrTimeout
	case <-ctx.Done():
		abandon(results)
		return nil, protocol.WrapError(protocol.KindDisconnected, ctx.Err())
	}
}

// abandon closes a connection that completes after its caller gave up
func abandon(results <-chan dialResult) {
	go func() {
		if r := <-results; r.ws != nil {
			_ = r.ws.Close()
		}
	}()
}

func handshakeResult(r dialResult) (*websocket.Conn, error) {
	if r.resp != nil && r.resp.Body != nil {
		_ = r.resp.Body.Close()
	}
	if r.err == nil {
		return r.ws, nil
	}

	if errors.Is(r.err, websocket.ErrBadHandshake) && r.resp != nil {
		switch r.resp.StatusCode {
		case http.StatusNotFound:
			return nil, protocol.NewError(protocol.KindNotFound, "lobby not found")
		case http.StatusConflict:
			return nil, protocol.NewError(protocol.KindFull, "lobby is full")
		}
	}
	return nil, protocol.WrapError(protocol.KindDisconnected, r.err)
}
