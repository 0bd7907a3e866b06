package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	execChunkBytes    = 3200 // 100ms at 16kHz
	execStartupProbe  = 250 * time.Millisecond
	execInterruptWait = 1200 * time.Millisecond
)

// ExecDevice records by running an external recorder that writes raw PCM16LE
// mono to stdout. A bare command name gets arecord-style arguments; a full
// command line may use {rate} as the sample-rate placeholder.
type ExecDevice struct {
	argv   []string
	logger *zap.Logger
}

func NewExecDevice(commandLine string, logger *zap.Logger) *ExecDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	argv := strings.Fields(commandLine)
	if len(argv) == 0 {
		argv = []string{"arecord"}
	}
	return &ExecDevice{argv: argv, logger: logger}
}

func (d *ExecDevice) args(sampleRate int) []string {
	rate := strconv.Itoa(sampleRate)
	if len(d.argv) == 1 {
		return []string{"-q", "-f", "S16_LE", "-c", "1", "-r", rate, "-t", "raw"}
	}
	out := make([]string, 0, len(d.argv)-1)
	for _, a := range d.argv[1:] {
		out = append(out, strings.ReplaceAll(a, "{rate}", rate))
	}
	return out
}

func (d *ExecDevice) Open(ctx context.Context, sampleRate int) (Stream, error) {
	path, err := exec.LookPath(d.argv[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	// Not CommandContext: the recorder lives until Close, not until ctx ends.
	cmd := exec.Command(path, d.args(sampleRate)...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s := &execStream{
		cmd:        cmd,
		stdout:     stdout,
		sampleRate: sampleRate,
		frags:      make(chan []byte, 32),
		exited:     make(chan struct{}),
	}
	go s.run()

	// Recorders report permission or device errors by exiting right away.
	select {
	case <-s.exited:
		if s.exitErr != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = s.exitErr.Error()
			}
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, msg)
		}
	case <-time.After(execStartupProbe):
	case <-ctx.Done():
		go func() {
			for range s.frags {
			}
		}()
		_ = s.Close()
		return nil, ctx.Err()
	}

	d.logger.Debug("capture recorder started", zap.String("command", path), zap.Int("pid", cmd.Process.Pid))
	return s, nil
}

type execStream struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	sampleRate int
	frags      chan []byte

	exited  chan struct{}
	exitErr error

	closeOnce sync.Once
}

func (s *execStream) Fragments() <-chan []byte { return s.frags }
func (s *execStream) SampleRate() int          { return s.sampleRate }

func (s *execStream) run() {
	defer close(s.frags)
	buf := make([]byte, execChunkBytes)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			frag := make([]byte, n)
			copy(frag, buf[:n])
			s.frags <- frag
		}
		if err != nil {
			break
		}
	}
	s.exitErr = s.cmd.Wait()
	close(s.exited)
}

// Close interrupts the recorder so it flushes its last buffer, then kills it
// if it does not exit in time.
func (s *execStream) Close() error {
	s.closeOnce.Do(func() {
		select {
		case <-s.exited:
			return
		default:
		}
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-s.exited:
		case <-time.After(execInterruptWait):
			_ = s.cmd.Process.Kill()
			<-s.exited
		}
	})
	return nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
