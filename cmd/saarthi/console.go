package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ent0n29/saarthi/internal/cache"
	"github.com/ent0n29/saarthi/internal/capture"
	"github.com/ent0n29/saarthi/internal/config"
	"github.com/ent0n29/saarthi/internal/health"
)

const (
	micDeniedMessage = "Could not access microphone. Please grant permission and try again."
	helpMessage      = "Enter: start/stop recording | lang <en|hi|te> | cache | status | quit"
)

type consoleCapture interface {
	Toggle(ctx context.Context) error
	State() capture.State
}

type consoleLanguage interface {
	Get() string
	Set(code string) error
}

type consoleCache interface {
	Len() int
	Capacity() int
	Summarize(limit int) string
}

type consoleDeps struct {
	capture  consoleCapture
	language consoleLanguage
	cache    consoleCache
	status   func() health.Status
	notice   func(text string)
	// changed is called after capture state or language changes.
	changed func()
}

// runConsole reads commands line by line until quit or ctx is done. It
// returns io.EOF when input ends first. A bare Enter acts as the microphone button.
func runConsole(ctx context.Context, in io.Reader, d consoleDeps) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			readErr <- err
			return
		}
		readErr <- io.EOF
	}()

	d.notice(helpMessage)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if quit := handleCommand(ctx, strings.TrimSpace(line), d); quit {
				return nil
			}
		}
	}
}

func handleCommand(ctx context.Context, line string, d consoleDeps) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "":
		err := d.capture.Toggle(ctx)
		switch {
		case errors.Is(err, capture.ErrDeviceUnavailable):
			d.notice(micDeniedMessage)
		case err != nil:
			d.notice(err.Error())
		case d.capture.State() == capture.StateRecording:
			d.notice("Recording... press Enter to stop")
		}
		d.changed()
	case "lang", "language":
		if err := d.language.Set(arg); err != nil {
			d.notice(fmt.Sprintf("unsupported language %q, expected one of %s", strings.TrimSpace(arg), strings.Join(config.SupportedLanguages, ", ")))
			return false
		}
		d.notice("Language set to " + d.language.Get())
		d.changed()
	case "cache":
		if d.cache.Len() == 0 {
			d.notice(cache.EmptySummary)
			return false
		}
		d.notice(d.cache.Summarize(d.cache.Capacity()))
	case "status":
		st := d.status()
		state := "online"
		if !st.Online {
			state = "offline"
		}
		d.notice(fmt.Sprintf("%s | capture %s | language %s | %d cached", state, d.capture.State(), d.language.Get(), d.cache.Len()))
	case "help", "?":
		d.notice(helpMessage)
	case "quit", "exit":
		return true
	default:
		d.notice(fmt.Sprintf("unknown command %q (try help)", cmd))
	}
	return false
}
