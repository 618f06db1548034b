//go:build unix

package camera

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// shellCommand runs script with sh; $1 is arg.
func shellCommand(script, arg string) CommandFunc {
	return func(ctx context.Context, _ Settings) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", script, "sh", arg)
	}
}

func writeMJPEG(t *testing.T, frames int) string {
	t.Helper()
	var data []byte
	for i := 0; i < frames; i++ {
		data = append(data, jpegBytes(t, 8, 6)...)
	}
	path := filepath.Join(t.TempDir(), "frames.mjpeg")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write stream file: %v", err)
	}
	return path
}

// closeWithin closes h and fails the test if Close blocks longer than d.
func closeWithin(t *testing.T, h Handle, d time.Duration) error {
	t.Helper()
	result := make(chan error, 1)
	go func() { result <- h.Close() }()
	select {
	case err := <-result:
		return err
	case <-time.After(d):
		t.Fatalf("Close did not return within %s", d)
		return nil
	}
}

func TestStreamBackend_OpenReadClose(t *testing.T) {
	path := writeMJPEG(t, 2)
	b := NewStreamBackend(nil).WithCommand(shellCommand(`cat "$1"; exec sleep 30`, path))

	h, err := b.Open(context.Background(), Settings{ProbeTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	img, err := h.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Errorf("expected 8x6 frame, got %v", img.Bounds())
	}

	if err := closeWithin(t, h, 5*time.Second); err != nil {
		t.Errorf("expected nil error when we stop the tool, got %v", err)
	}
	if err := closeWithin(t, h, time.Second); err != nil {
		t.Errorf("expected second Close to be a no-op, got %v", err)
	}
}

func TestStreamBackend_CloseKillsHelperProcesses(t *testing.T) {
	path := writeMJPEG(t, 1)
	// The sleep runs as a child of sh and keeps stdout open.
	b := NewStreamBackend(nil).WithCommand(shellCommand(`cat "$1"; sleep 30; echo done`, path))

	h, err := b.Open(context.Background(), Settings{ProbeTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := h.Read(context.Background()); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if err := closeWithin(t, h, 5*time.Second); err != nil {
		t.Errorf("expected nil error when we stop the tool, got %v", err)
	}
}

func TestStreamBackend_CloseReportsCrash(t *testing.T) {
	path := writeMJPEG(t, 1)
	b := NewStreamBackend(nil).WithCommand(shellCommand(`cat "$1"; exit 3`, path))

	h, err := b.Open(context.Background(), Settings{ProbeTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := h.Read(context.Background()); err != nil {
		t.Fatalf("first Read failed: %v", err)
	}

	_, err = h.Read(context.Background())
	if err == nil || !strings.Contains(err.Error(), "stream ended") {
		t.Fatalf("expected stream ended error, got %v", err)
	}
	<-h.(*streamHandle).done

	err = closeWithin(t, h, 5*time.Second)
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("expected exit status 3 from Close, got %v", err)
	}
}

func TestStreamBackend_StartFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-tool")
	b := NewStreamBackend(nil).WithCommand(func(ctx context.Context, _ Settings) *exec.Cmd {
		return exec.CommandContext(ctx, missing)
	})

	if _, err := b.Open(context.Background(), Settings{}); err == nil {
		t.Error("expected Open to fail for a missing binary")
	}
}

func TestSource_StreamingToolFailsBeforeFirstFrame(t *testing.T) {
	b := NewStreamBackend(nil).WithCommand(shellCommand(`echo boom >&2; exit 1`, ""))
	src := NewSource(Settings{ProbeTimeout: 5 * time.Second}, nil, b)

	err := src.Open(context.Background())
	if !errors.Is(err, ErrNoCameraAvailable) {
		t.Fatalf("expected ErrNoCameraAvailable, got %v", err)
	}

	probes := src.Probes()
	if len(probes) != 1 {
		t.Fatalf("expected one probe result, got %d", len(probes))
	}
	if probes[0].Outcome != Unreadable {
		t.Errorf("expected Unreadable, got %s", probes[0].Outcome)
	}
	if probes[0].Err == nil || !strings.Contains(probes[0].Err.Error(), "boom") {
		t.Errorf("expected stderr in the probe error, got %v", probes[0].Err)
	}
	if err := src.Release(); err != nil {
		t.Errorf("Release after failed Open: %v", err)
	}
}
