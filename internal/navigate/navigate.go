// Package navigate delivers outbound navigation requests: showing an article
// in a browser tab after a saved tree is loaded or from the terminal viewer.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"rabbithole/internal/model"
)

// ErrUnavailable is returned by a navigator that has nowhere to send the
// request (no connected extension, for example). Fallback moves on to the
// next navigator only for this error.
var ErrUnavailable = errors.New("navigator unavailable")

type Navigator interface {
	Navigate(ctx context.Context, req model.NavigationRequest) error
}

// Func adapts a function to Navigator.
type Func func(ctx context.Context, req model.NavigationRequest) error

func (f Func) Navigate(ctx context.Context, req model.NavigationRequest) error { return f(ctx, req) }

// ValidateURL accepts absolute http(s) URLs only; anything else would be
// handed to the OS opener as a file or command.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	return u.String(), nil
}

// Browser opens URLs with the platform opener (open, xdg-open, start).
// It cannot reuse tabs; ReuseTab is ignored.
type Browser struct {
	// Command builds the opener; nil uses the platform default.
	Command func(ctx context.Context, u string) *exec.Cmd
}

func (b Browser) Navigate(ctx context.Context, req model.NavigationRequest) error {
	u, err := ValidateURL(req.URL)
	if err != nil {
		return err
	}
	build := b.Command
	if build == nil {
		build = openerCommand
	}
	cmd := build(ctx, u)
	// Keep the opener's chatter out of the terminal.
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Wait()
}

func openerCommand(ctx context.Context, u string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "open", u)
	case "windows":
		return exec.CommandContext(ctx, "cmd", "/c", "start", "", u)
	default:
		return exec.CommandContext(ctx, "xdg-open", u)
	}
}

// Fallback tries each navigator in order until one does not report
// ErrUnavailable.
type Fallback []Navigator

func (f Fallback) Navigate(ctx context.Context, req model.NavigationRequest) error {
	for _, n := range f {
		if n == nil {
			continue
		}
		err := n.Navigate(ctx, req)
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
	}
	return ErrUnavailable
}

// Recorder keeps every request it receives. Useful for dry runs and tests.
type Recorder struct {
	mu   sync.Mutex
	reqs []model.NavigationRequest
	Err  error
}

func (r *Recorder) Navigate(_ context.Context, req model.NavigationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.Err
}

func (r *Recorder) Requests() []model.NavigationRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.NavigationRequest(nil), r.reqs...)
}
