// Package channel is the receiving end of the controller/agent object
// channel: decode through the gate, authorize the direction, execute
// once, encode the result.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ppiankov/chaingate/internal/gate"
	"github.com/ppiankov/chaingate/internal/model"
	"github.com/ppiankov/chaingate/internal/sandbox"
	"github.com/ppiankov/chaingate/internal/wire"
)

// Callable is a work item the receiving side executes. fs is the only
// filesystem the item may use; every operation on it is sandboxed for
// the side that sent the item.
type Callable interface {
	Call(ctx context.Context, fs *gate.Scope) (any, error)
}

// Response is the wire shape of an execution result.
type Response struct {
	Result wire.Any `cbor:"result"`
	Error  string   `cbor:"error,omitempty"`
}

// ResponseClass is the class name of Response on the wire.
const ResponseClass = "chaingate.channel.Response"

func init() {
	wire.Register(ResponseClass, Response{})
}

// RemoteError is a failure reported by the peer. Message is the
// boundary-safe text the peer chose to send.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

// Endpoint is one side of the channel.
type Endpoint struct {
	Local model.Side
	Gate  *gate.Gate
	// Context describes the filesystem roots of an incoming request.
	// Nil gives the remote side no roots.
	Context func(ctx context.Context) sandbox.Context
	Logger  *slog.Logger

	seq atomic.Uint64
}

func (e *Endpoint) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Send checks that item may travel to the peer and encodes it.
func (e *Endpoint) Send(item any) ([]byte, error) {
	dir := model.DirectionBetween(e.Local, e.Local.Peer())
	if err := e.Gate.Authorize(item, dir); err != nil {
		return nil, err
	}
	data, err := wire.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode work item: %w", err)
	}
	return data, nil
}

// Receive decodes, authorizes and executes one work item sent by the
// peer and returns the encoded response. The response always carries a
// boundary-safe result; the returned error is the full failure for
// local logs.
func (e *Endpoint) Receive(ctx context.Context, data []byte) ([]byte, error) {
	remote := e.Local.Peer()
	var rc sandbox.Context
	if e.Context != nil {
		rc = e.Context(ctx)
	}
	id := fmt.Sprintf("%s-%d", remote, e.seq.Add(1))
	scope := e.Gate.NewScope(id, remote, rc)
	defer scope.Close()

	result, err := e.execute(ctx, scope, data)
	if err != nil {
		e.logger().Debug("work item failed", "scope", id, "error", err)
		resp, encErr := wire.Marshal(Response{Error: scope.External(err)})
		if encErr != nil {
			return nil, fmt.Errorf("encode failure response: %w", encErr)
		}
		return resp, err
	}

	resp, err := wire.Marshal(Response{Result: wire.Any{Value: result}})
	if err != nil {
		err = fmt.Errorf("encode result: %w", err)
		fallback, encErr := wire.Marshal(Response{Error: scope.External(err)})
		if encErr != nil {
			return nil, encErr
		}
		return fallback, err
	}
	return resp, nil
}

func (e *Endpoint) execute(ctx context.Context, scope *gate.Scope, data []byte) (result any, err error) {
	v, err := scope.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := scope.Authorize(v, model.DirectionBetween(scope.Side(), e.Local)); err != nil {
		return nil, err
	}
	call, ok := v.(Callable)
	if !ok {
		return nil, fmt.Errorf("received %T is not executable", v)
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("work item panicked: %v", r)
		}
	}()
	return call.Call(ctx, scope)
}

// Result decodes a response from the peer. Classes in the result are
// admitted on the local side like any other received graph.
func (e *Endpoint) Result(data []byte) (any, error) {
	v, err := e.Gate.Decode(data, e.Local)
	if err != nil {
		return nil, err
	}
	resp, ok := v.(Response)
	if !ok {
		return nil, fmt.Errorf("expected %s, got %T", ResponseClass, v)
	}
	if resp.Error != "" {
		return nil, &RemoteError{Message: resp.Error}
	}
	return resp.Result.Value, nil
}
