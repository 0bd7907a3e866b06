package transcript

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Player renders an audio clip. Play blocks until playback finishes.
type Player interface {
	Play(ctx context.Context, audio Audio) error
}

// ExecPlayer pipes audio into a player command's stdin.
type ExecPlayer struct {
	argv []string
}

// NewExecPlayer builds a player from a command line. A bare ffplay gets
// flags for headless playback from stdin.
func NewExecPlayer(commandLine string) *ExecPlayer {
	argv := strings.Fields(commandLine)
	if len(argv) == 0 {
		argv = []string{"ffplay"}
	}
	if len(argv) == 1 && filepath.Base(argv[0]) == "ffplay" {
		argv = append(argv, "-nodisp", "-autoexit", "-loglevel", "quiet", "-")
	}
	return &ExecPlayer{argv: argv}
}

func (p *ExecPlayer) Play(ctx context.Context, audio Audio) error {
	path, err := exec.LookPath(p.argv[0])
	if err != nil {
		return fmt.Errorf("player unavailable: %w", err)
	}
	cmd := exec.CommandContext(ctx, path, p.argv[1:]...)
	cmd.Stdin = bytes.NewReader(audio.Data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("player failed: %s", msg)
	}
	return nil
}

// FilePlayer writes each clip into a directory instead of playing it.
type FilePlayer struct {
	dir string
	now func() time.Time
}

func NewFilePlayer(dir string) *FilePlayer {
	return &FilePlayer{dir: dir, now: time.Now}
}

func (p *FilePlayer) Play(_ context.Context, audio Audio) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create playback dir: %w", err)
	}
	name := fmt.Sprintf("response-%s%s", p.now().UTC().Format("20060102T150405.000000000"), extensionFor(audio.ContentType))
	if err := os.WriteFile(filepath.Join(p.dir, name), audio.Data, 0o644); err != nil {
		return fmt.Errorf("write playback file: %w", err)
	}
	return nil
}

func extensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	default:
		return ".mp3"
	}
}

const speakerQueue = 4

// Speaker is the Sink that plays audio. Clips are played one at a time on a
// background worker; text calls are ignored.
type Speaker struct {
	player Player
	logger *zap.Logger
	queue  chan Audio
	done   chan struct{}
}

// NewSpeaker starts the playback worker; it stops when ctx is done.
func NewSpeaker(ctx context.Context, player Player, logger *zap.Logger) *Speaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Speaker{
		player: player,
		logger: logger,
		queue:  make(chan Audio, speakerQueue),
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *Speaker) AppendMessage(Role, string, string) {}
func (s *Speaker) ReplaceLastUserMessage(string)     {}

func (s *Speaker) PlayAudio(audio Audio) {
	if len(audio.Data) == 0 {
		return
	}
	select {
	case s.queue <- audio:
	case <-s.done:
	default:
		s.logger.Warn("playback queue full, dropping clip")
	}
}

// Done is closed once the worker has exited.
func (s *Speaker) Done() <-chan struct{} { return s.done }

func (s *Speaker) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case audio := <-s.queue:
			if err := s.player.Play(ctx, audio); err != nil {
				s.logger.Warn("audio playback failed", zap.Error(err))
			}
		}
	}
}
