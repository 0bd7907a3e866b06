package capture

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ent0n29/saarthi/internal/audio"
)

type stubStream struct {
	frags     chan []byte
	closeOnce sync.Once
	closes    int
}

func newStubStream() *stubStream {
	return &stubStream{frags: make(chan []byte, 16)}
}

func (s *stubStream) Fragments() <-chan []byte { return s.frags }
func (s *stubStream) SampleRate() int          { return 16000 }

func (s *stubStream) push(b []byte) { s.frags <- b }

func (s *stubStream) Close() error {
	s.closes++
	s.closeOnce.Do(func() { close(s.frags) })
	return nil
}

type stubDevice struct {
	openErr error
	opens   int
	streams []*stubStream
}

func (d *stubDevice) Open(context.Context, int) (Stream, error) {
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := newStubStream()
	d.streams = append(d.streams, s)
	return s, nil
}

type payloadRecorder struct {
	mu       sync.Mutex
	payloads []AudioPayload
}

func (r *payloadRecorder) handle(_ context.Context, p AudioPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
}

func TestStartStopDeliversAllFragmentsOnce(t *testing.T) {
	dev := &stubDevice{}
	rec := &payloadRecorder{}
	c := NewController(dev, rec.handle, 16000, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.Equal(t, StateRecording, c.State())

	stream := dev.streams[0]
	stream.push([]byte{1, 0})
	stream.push([]byte{2, 0, 3, 0})
	stream.push([]byte{4, 0})

	require.NoError(t, c.Stop(ctx))
	require.Equal(t, StateIdle, c.State())
	require.Len(t, rec.payloads, 1)

	p := rec.payloads[0]
	require.Equal(t, audio.ContentTypeWAV, p.ContentType)
	require.Equal(t, 3, p.Fragments)
	require.NotEmpty(t, p.SessionID)

	pcm, rate, err := audio.DecodeWAVPCM16LE(p.Data)
	require.NoError(t, err)
	require.Equal(t, 16000, rate)
	require.Equal(t, []byte{1, 0, 2, 0, 3, 0, 4, 0}, pcm)

	// A second stop has nothing to finalize.
	require.NoError(t, c.Stop(ctx))
	require.Len(t, rec.payloads, 1)
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	dev := &stubDevice{}
	rec := &payloadRecorder{}
	c := NewController(dev, rec.handle, 16000, nil, nil)

	require.NoError(t, c.Stop(context.Background()))
	require.Equal(t, StateIdle, c.State())
	require.Empty(t, rec.payloads)
	require.Zero(t, dev.opens)
}

func TestStartWhileRecordingKeepsSession(t *testing.T) {
	dev := &stubDevice{}
	rec := &payloadRecorder{}
	c := NewController(dev, rec.handle, 16000, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	dev.streams[0].push([]byte{9, 0})

	err := c.Start(ctx)
	require.ErrorIs(t, err, ErrAlreadyRecording)
	require.Equal(t, 1, dev.opens)
	require.Equal(t, StateRecording, c.State())
	require.Zero(t, dev.streams[0].closes)

	require.NoError(t, c.Stop(ctx))
	pcm, _, err := audio.DecodeWAVPCM16LE(rec.payloads[0].Data)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 0}, pcm)
}

func TestStartDeviceFailureStaysIdle(t *testing.T) {
	dev := &stubDevice{openErr: errors.New("audio open error: Permission denied")}
	rec := &payloadRecorder{}
	c := NewController(dev, rec.handle, 16000, nil, nil)

	err := c.Start(context.Background())
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	require.Contains(t, err.Error(), "Permission denied")
	require.Equal(t, StateIdle, c.State())
	require.Empty(t, rec.payloads)
}

func TestStartDuringHandoffIsBusy(t *testing.T) {
	dev := &stubDevice{}
	var c *Controller
	var startErr error
	handler := func(ctx context.Context, _ AudioPayload) {
		startErr = c.Start(ctx)
	}
	c = NewController(dev, handler, 16000, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Stop(ctx))
	require.ErrorIs(t, startErr, ErrBusy)

	// Once the handler has returned a new recording can start.
	require.NoError(t, c.Start(ctx))
	require.Equal(t, 2, dev.opens)
}

func TestToggle(t *testing.T) {
	dev := &stubDevice{}
	rec := &payloadRecorder{}
	c := NewController(dev, rec.handle, 16000, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Toggle(ctx))
	require.Equal(t, StateRecording, c.State())
	require.NoError(t, c.Toggle(ctx))
	require.Equal(t, StateIdle, c.State())
	require.Len(t, rec.payloads, 1)
}

func TestFileDeviceReplaysWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utterance.wav")
	pcm := make([]byte, 1000)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	require.NoError(t, audio.WriteWAVPCM16LEFile(path, pcm, 8000))

	dev := &FileDevice{Path: path, ChunkBytes: 64}
	rec := &payloadRecorder{}
	c := NewController(dev, rec.handle, 16000, nil, nil)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	// Without pacing the replay finishes on its own; Stop collects everything pushed.
	<-c.current.pumped
	require.NoError(t, c.Stop(ctx))

	got, rate, err := audio.DecodeWAVPCM16LE(rec.payloads[0].Data)
	require.NoError(t, err)
	require.Equal(t, 8000, rate)
	require.Equal(t, pcm, got)
}

func TestFileDeviceMissingFile(t *testing.T) {
	dev := NewFileDevice(filepath.Join(t.TempDir(), "missing.wav"))
	_, err := dev.Open(context.Background(), 16000)
	require.ErrorIs(t, err, ErrDeviceUnavailable)
}
