package control

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lowlatency/llq/internal/config"
)

type recordingHandler struct {
	cmds chan Command
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{cmds: make(chan Command, 8)}
}

func (h *recordingHandler) HandleCommand(cmd Command) {
	h.cmds <- cmd
}

func TestFileMonitorDispatchesCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.ControlConfig{
		FilePath:     filepath.Join(dir, "control"),
		MonitorDelay: 5 * time.Millisecond,
	}
	handler := newRecordingHandler()

	fm := NewFileMonitor(context.Background(), cfg, handler)
	if err := fm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fm.Stop()

	if err := os.WriteFile(cfg.FilePath, []byte("1"), 0644); err != nil {
		t.Fatalf("write control file: %v", err)
	}

	select {
	case cmd := <-handler.cmds:
		if cmd != CmdStartCapture {
			t.Fatalf("cmd = %q, want %q", cmd, CmdStartCapture)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestFileMonitorIgnoresRepeatedCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.ControlConfig{
		FilePath:     filepath.Join(dir, "control"),
		MonitorDelay: 5 * time.Millisecond,
	}
	handler := newRecordingHandler()

	fm := NewFileMonitor(context.Background(), cfg, handler)
	if err := fm.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fm.Stop()

	os.WriteFile(cfg.FilePath, []byte("1"), 0644)
	select {
	case <-handler.cmds:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first command")
	}

	// The file is cleared after a command is consumed, but the last-seen
	// value is remembered, so writing the identical command again must not
	// redispatch it until a different value appears in between.
	os.WriteFile(cfg.FilePath, []byte("1"), 0644)
	time.Sleep(10 * cfg.MonitorDelay)
	select {
	case cmd := <-handler.cmds:
		t.Fatalf("unexpected repeated dispatch of %q", cmd)
	default:
	}

	os.WriteFile(cfg.FilePath, []byte("2"), 0644)
	select {
	case cmd := <-handler.cmds:
		if cmd != CmdStopCapture {
			t.Fatalf("cmd = %q, want %q", cmd, CmdStopCapture)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for differing command")
	}
}

func TestStdinMonitorDispatch(t *testing.T) {
	handler := newRecordingHandler()
	sm := NewStdinMonitor(context.Background(), handler)

	sm.dispatch("start")
	sm.dispatch("bogus")
	sm.dispatch("stop")

	if got := <-handler.cmds; got != CmdStartCapture {
		t.Fatalf("first cmd = %q, want %q", got, CmdStartCapture)
	}
	if got := <-handler.cmds; got != CmdStopCapture {
		t.Fatalf("second cmd = %q, want %q", got, CmdStopCapture)
	}
}
