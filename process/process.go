package process

import (
	"time"

	"go.uber.org/zap"
)

// Tag marks messages sent by the tagged operations of Context.
type Tag uint64

// Process is a user-defined state machine driven by the runtime.
//
// Handlers of one process are never invoked concurrently. A returned
// error is logged by the runtime and does not stop the process.
type Process interface {
	// OnLocalMessage handles a message from the user of the process.
	OnLocalMessage(ctx Context, msg Message) error
	// OnMessage handles a network message from another process.
	OnMessage(ctx Context, msg Message, from Address) error
	// OnTimer handles a fired timer.
	OnTimer(ctx Context, name string) error
}

// Context gives a process access to the runtime: network, timers,
// asynchronous activities and storage. Implementations are provided by
// the virtual (sim) and the real (real) runtimes.
type Context interface {
	Self() Address
	Logger() *zap.Logger

	// Send sends a message without delivery guarantees.
	Send(msg Message, dst Address)
	// SendLocal passes a message to the user of the process.
	SendLocal(msg Message)
	// SendWithAck delivers a message reliably and waits for the
	// acknowledgement. ErrTimeout is returned when it does not arrive in time,
	// which does not mean the message was not delivered.
	SendWithAck(msg Message, dst Address, timeout time.Duration) error
	// SendWithTag is SendWithAck for a tagged message.
	SendWithTag(msg Message, tag Tag, dst Address, timeout time.Duration) error
	// SendRecvWithTag sends a tagged message and waits for a message with
	// the same tag addressed to this process.
	SendRecvWithTag(msg Message, tag Tag, dst Address, timeout time.Duration) (Message, error)

	// SetTimer sets a timer, overriding the timer with the same name.
	SetTimer(name string, delay time.Duration)
	// SetTimerOnce sets a timer unless a timer with the same name exists.
	SetTimerOnce(name string, delay time.Duration)
	CancelTimer(name string)

	// Spawn starts an asynchronous activity of the process.
	Spawn(fn func(ctx Context))
	// Sleep blocks the calling activity.
	Sleep(d time.Duration)
	// Stop stops the process. Timers are cancelled and no more events
	// are delivered.
	Stop()

	// Time returns the current time in seconds.
	Time() float64
	// Rand returns a number uniformly distributed in [0, 1).
	Rand() float64

	CreateFile(name string) (File, error)
	OpenFile(name string) (File, error)
	FileExists(name string) (bool, error)
	DeleteFile(name string) error
}

// File is an append-only file in the storage of the node.
type File interface {
	// Read reads into b starting at offset and returns the number of bytes read.
	// Zero bytes and a nil error mean the end of the file.
	Read(b []byte, offset int64) (int, error)
	// Append appends b and returns the number of bytes written, which can be
	// less than len(b) if the storage is full.
	Append(b []byte) (int, error)
}
