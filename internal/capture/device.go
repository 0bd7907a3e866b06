package capture

import (
	"context"
	"errors"
)

var (
	// ErrDeviceUnavailable covers every reason the capture device could not be opened:
	// missing recorder binary, permission denied, no input device.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrAlreadyRecording  = errors.New("capture already recording")
	// ErrBusy is returned while a stopped recording is still being handed off.
	ErrBusy = errors.New("capture busy finalizing previous recording")
)

// Stream is an open capture device pushing raw PCM16LE mono fragments.
//
// Close stops the producer. Fragments already read from the device are still
// delivered, after which the Fragments channel is closed.
type Stream interface {
	Fragments() <-chan []byte
	SampleRate() int
	Close() error
}

// Device opens exclusive capture streams.
type Device interface {
	Open(ctx context.Context, sampleRate int) (Stream, error)
}
