// Package router owns the command id -> handler table.
//
// Ownership boundary:
// - route registration and duplicate rejection
// - frozen steady-state lookup and dispatch
// - handler outcome to response code mapping
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/danmuck/pusherctl/internal/logging"
	"github.com/danmuck/pusherctl/internal/observability"
)

// Response codes carried in the errorCode field of a Response payload.
const (
	CodeOK         uint16 = 0
	CodeError      uint16 = 1
	CodeUnknownCmd uint16 = 2
	CodeBadRequest uint16 = 3
)

var (
	ErrDuplicateRoute = errors.New("router: duplicate route")
	ErrFrozen         = errors.New("router: route table frozen")

	// ErrBadRequest lets a handler signal a malformed command payload;
	// it maps to CodeBadRequest instead of the generic CodeError.
	ErrBadRequest = errors.New("router: bad request")
)

// HandlerFunc processes one command payload and returns the reply data.
// Handlers are synchronous and bounded; side effects beyond the reply
// go through the event bus, never through blocking I/O here.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Router maps command ids to handlers. The table is built once at
// startup, then frozen; steady-state dispatch takes no lock.
type Router struct {
	routes map[uint16]HandlerFunc
	frozen bool
	log    zerolog.Logger
}

func New() *Router {
	return &Router{
		routes: make(map[uint16]HandlerFunc),
		log:    logging.Component("router"),
	}
}

// Register binds a handler to a command id. Registering the same id
// twice is rejected so a wiring mistake fails at startup instead of
// silently shadowing a handler at runtime.
func (r *Router) Register(cmd uint16, h HandlerFunc) error {
	if r.frozen {
		return fmt.Errorf("%w: cmd=0x%04X", ErrFrozen, cmd)
	}
	if h == nil {
		return fmt.Errorf("router: nil handler for cmd=0x%04X", cmd)
	}
	if _, exists := r.routes[cmd]; exists {
		return fmt.Errorf("%w: cmd=0x%04X", ErrDuplicateRoute, cmd)
	}
	r.routes[cmd] = h
	return nil
}

// Freeze seals the table. Call after all Register calls, before any
// session starts dispatching.
func (r *Router) Freeze() {
	r.frozen = true
}

// Routes reports how many commands are registered.
func (r *Router) Routes() int { return len(r.routes) }

// Dispatch looks up and invokes the handler for cmd. An unknown cmd
// returns CodeUnknownCmd without invoking anything; a handler failure
// becomes a nonzero code, never an aborted session.
func (r *Router) Dispatch(ctx context.Context, cmd uint16, payload []byte) ([]byte, uint16) {
	h, ok := r.routes[cmd]
	if !ok {
		r.log.Warn().Uint16("cmd", cmd).Msg("no route for command")
		observability.RecordDispatch("unknown_cmd")
		return nil, CodeUnknownCmd
	}

	reply, err := h(ctx, payload)
	if err != nil {
		code := CodeError
		if errors.Is(err, ErrBadRequest) {
			code = CodeBadRequest
		}
		r.log.Warn().Uint16("cmd", cmd).Err(err).Msg("handler failed")
		observability.RecordDispatch("handler_error")
		return nil, code
	}
	observability.RecordDispatch("ok")
	return reply, CodeOK
}
