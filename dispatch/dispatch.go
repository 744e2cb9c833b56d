// Package dispatch submits download jobs and pass continuations without waiting for them.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"

	"canvasdatasync/target"
	"canvasdatasync/utils"
)

// log a convenience wrapper to shorten code lines
var log = &utils.Logger

var (
	// ErrQueueFull the in-process queue cannot take another job
	ErrQueueFull = errors.New("dispatch queue is full")
	// ErrClosed the dispatcher no longer accepts jobs
	ErrClosed = errors.New("dispatcher is closed")
)

// Dispatcher submits one download job. Submit returns once the job is accepted; the download
// itself happens elsewhere and is never awaited by the caller.
type Dispatcher interface {
	Submit(ctx context.Context, req target.FetchRequest) error
}

// Reinvoker schedules a new pass with the original event payload, byte for byte.
type Reinvoker interface {
	Reinvoke(ctx context.Context, event json.RawMessage) error
}
