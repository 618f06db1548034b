package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// maxJPEGFrame bounds a single MJPEG frame read from the stream.
	maxJPEGFrame = 8 << 20
	// stderrTail is how much of the streaming tool's stderr is kept for errors.
	stderrTail = 2048
	// processWaitDelay bounds how long Wait waits for the tool's pipes to
	// close after it exits or is killed.
	processWaitDelay = time.Second
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// CommandFunc builds the streaming process for the given settings. The
// command must be created with exec.CommandContext(ctx, ...).
type CommandFunc func(ctx context.Context, settings Settings) *exec.Cmd

// StreamBackend reads an MJPEG stream from a sensor streaming tool
// (rpicam-vid by default) running as a subprocess.
type StreamBackend struct {
	log     *zap.Logger
	command CommandFunc
}

// NewStreamBackend returns the streaming backend using rpicam-vid style flags.
func NewStreamBackend(logger *zap.Logger) *StreamBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamBackend{log: logger, command: rpicamCommand}
}

// WithCommand replaces the command builder.
func (b *StreamBackend) WithCommand(fn CommandFunc) *StreamBackend {
	b.command = fn
	return b
}

func (*StreamBackend) Kind() BackendKind {
	return BackendStreaming
}

func rpicamCommand(ctx context.Context, s Settings) *exec.Cmd {
	return exec.CommandContext(ctx, s.StreamCommand, //nolint:gosec // command comes from operator configuration
		"-t", "0",
		"--codec", "mjpeg",
		"--width", strconv.Itoa(s.Width),
		"--height", strconv.Itoa(s.Height),
		"--framerate", strconv.Itoa(s.FPS),
		"--nopreview",
		"-o", "-",
	)
}

// Open starts the streaming process. The process outlives ctx and is stopped
// by Close.
func (b *StreamBackend) Open(_ context.Context, settings Settings) (Handle, error) {
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := b.command(procCtx, settings)
	configureProcess(cmd)
	cmd.WaitDelay = processWaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	tail := &tailBuffer{max: stderrTail}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	b.log.Debug("streaming process started", zap.String("command", cmd.String()), zap.Int("pid", cmd.Process.Pid))

	h := startStreamHandle(stdout, settings.ProbeTimeout, tail, cmd.Wait)
	h.stop = func() error {
		select {
		case <-h.done:
			// The tool exited on its own; its exit status is the error.
			cancel()
			return h.exitError()
		default:
		}
		cancel()
		<-h.done
		return nil
	}
	return h, nil
}

// streamHandle keeps the most recent JPEG frame produced by the reader
// goroutine. Read returns a frame newer than the one it returned last.
type streamHandle struct {
	timeout time.Duration
	notify  chan struct{}
	done    chan struct{}
	stderr  *tailBuffer
	wait    func() error
	stop    func() error

	mu       sync.Mutex
	latest   []byte
	seq      uint64
	lastRead uint64
	err      error
	exitErr  error

	closeOnce sync.Once
	closeErr  error
}

func newStreamHandle(r io.Reader, timeout time.Duration) *streamHandle {
	return startStreamHandle(r, timeout, nil, nil)
}

// startStreamHandle starts the reader goroutine. When the stream ends, wait
// (if set) reaps the process before the end-of-stream error is published, so
// the error carries the exit status and the complete stderr tail.
func startStreamHandle(r io.Reader, timeout time.Duration, stderr *tailBuffer, wait func() error) *streamHandle {
	h := &streamHandle{
		timeout: timeout,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stderr:  stderr,
		wait:    wait,
	}
	go h.consume(r)
	return h
}

func (h *streamHandle) consume(r io.Reader) {
	defer close(h.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJPEGFrame)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		frame := bytes.Clone(scanner.Bytes())
		h.mu.Lock()
		h.latest = frame
		h.seq++
		h.mu.Unlock()
		h.signal()
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	var exitErr error
	if h.wait != nil {
		exitErr = h.wait()
	}

	h.mu.Lock()
	h.exitErr = exitErr
	if exitErr != nil {
		h.err = fmt.Errorf("stream ended: %w (%v)%s", err, exitErr, h.stderrSuffix())
	} else {
		h.err = fmt.Errorf("stream ended: %w%s", err, h.stderrSuffix())
	}
	h.mu.Unlock()
	h.signal()
}

func (h *streamHandle) exitError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *streamHandle) signal() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *streamHandle) stderrSuffix() string {
	if h.stderr == nil {
		return ""
	}
	if s := h.stderr.String(); s != "" {
		return " (stderr: " + s + ")"
	}
	return ""
}

// Read waits for the next frame, bounded by ctx and the handle timeout.
func (h *streamHandle) Read(ctx context.Context) (*image.RGBA, error) {
	var timeout <-chan time.Time
	if h.timeout > 0 {
		timer := time.NewTimer(h.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		h.mu.Lock()
		if h.seq > h.lastRead {
			data := h.latest
			h.lastRead = h.seq
			h.mu.Unlock()
			return decodeJPEG(data)
		}
		err := h.err
		h.mu.Unlock()
		if err != nil {
			return nil, err
		}

		select {
		case <-h.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, errors.New("timed out waiting for a frame")
		}
	}
}

// Close stops the streaming process and waits for the reader to finish.
func (h *streamHandle) Close() error {
	h.closeOnce.Do(func() {
		if h.stop != nil {
			h.closeErr = h.stop()
		}
	})
	return h.closeErr
}

func decodeJPEG(data []byte) (*image.RGBA, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mjpeg frame: %w", err)
	}
	return ToRGBA(img), nil
}

// splitJPEG is a bufio.SplitFunc yielding complete JPEG images delimited by
// the SOI and EOI markers. Bytes outside a marker pair are discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// A trailing 0xFF may be the first half of an SOI marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}
