package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/zhouzirui/smart-tutor/backend/pkg/session"
)

// commandPlayer plays clips by running an external player (ffplay, mpg123, ...) on the URL.
type commandPlayer struct {
	command string
	args    []string
	resolve func(string) string
}

func newCommandPlayer(name string, resolve func(string) string) (*commandPlayer, error) {
	var args []string
	switch name {
	case "ffplay":
		args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
	case "mpg123":
		args = []string{"-q"}
	case "mpv":
		args = []string{"--no-video", "--really-quiet"}
	}
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("audio player %q not found: %w", name, err)
	}
	return &commandPlayer{command: name, args: args, resolve: resolve}, nil
}

func (p *commandPlayer) Load(_ context.Context, resource string) (session.Handle, error) {
	url := resource
	if p.resolve != nil {
		url = p.resolve(resource)
	}
	args := append(append([]string(nil), p.args...), url)
	return &processHandle{cmd: exec.Command(p.command, args...), done: make(chan struct{})}, nil
}

type processHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

func (h *processHandle) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return errors.New("handle already stopped")
	}
	if err := h.cmd.Start(); err != nil {
		return err
	}
	h.started = true
	go func() {
		h.cmd.Wait()
		close(h.done)
	}()
	return nil
}

func (h *processHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.started && h.cmd.Process != nil {
		h.cmd.Process.Kill()
	}
}

func (h *processHandle) Done() <-chan struct{} { return h.done }
