// Package control drives a running capture demo (cmd/avrecord) with simple
// out-of-band commands, the way the teacher's chat client let an operator
// start and stop a recording without a dedicated RPC surface.
package control

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lowlatency/llq/internal/config"
)

// Command is a capture control command.
type Command string

const (
	CmdStartCapture Command = "1"
	CmdStopCapture  Command = "2"
	CmdTestCapture  Command = "3"
	CmdQuit         Command = "q"
)

// Handler reacts to control commands.
type Handler interface {
	HandleCommand(cmd Command)
}

// FileMonitor polls a control file for a command byte, the way an operator
// without a terminal (an embedded device, a systemd unit) can still drive
// capture by writing to a well-known path.
type FileMonitor struct {
	config  *config.ControlConfig
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewFileMonitor creates a file-backed control monitor.
func NewFileMonitor(parentCtx context.Context, cfg *config.ControlConfig, handler Handler) *FileMonitor {
	ctx, cancel := context.WithCancel(parentCtx)
	return &FileMonitor{config: cfg, handler: handler, ctx: ctx, cancel: cancel}
}

// Start creates the control file (truncating any stale command) and begins
// polling it.
func (fm *FileMonitor) Start() error {
	if err := os.WriteFile(fm.config.FilePath, []byte{}, 0644); err != nil {
		return fmt.Errorf("control: init control file: %w", err)
	}
	go fm.loop()
	return nil
}

// Stop ends the polling loop. The control file is left in place.
func (fm *FileMonitor) Stop() error {
	fm.cancel()
	return nil
}

func (fm *FileMonitor) loop() {
	ticker := time.NewTicker(fm.config.MonitorDelay)
	defer ticker.Stop()

	var lastCmd string
	for {
		select {
		case <-fm.ctx.Done():
			return
		case <-ticker.C:
			if err := fm.check(&lastCmd); err != nil {
				log.Printf("control: check control file: %v", err)
			}
		}
	}
}

func (fm *FileMonitor) check(lastCmd *string) error {
	content, err := os.ReadFile(fm.config.FilePath)
	if err != nil {
		return err
	}

	current := string(bytes.TrimSpace(content))
	if current == "" || current == *lastCmd {
		return nil
	}
	*lastCmd = current

	fm.handler.HandleCommand(Command(current))

	if err := os.WriteFile(fm.config.FilePath, []byte{}, 0644); err != nil {
		log.Printf("control: clear control file: %v", err)
	}
	return nil
}

// StdinMonitor reads commands typed into a terminal, for local debugging
// without needing a separate writer process.
type StdinMonitor struct {
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStdinMonitor creates a stdin-backed control monitor.
func NewStdinMonitor(parentCtx context.Context, handler Handler) *StdinMonitor {
	ctx, cancel := context.WithCancel(parentCtx)
	return &StdinMonitor{handler: handler, ctx: ctx, cancel: cancel}
}

// Start begins reading lines from stdin in a background goroutine.
func (sm *StdinMonitor) Start() error {
	go sm.loop()
	return nil
}

// Stop ends the read loop. The blocked ReadString call is left to exit on
// the next newline, matching the teacher's own stdin monitor.
func (sm *StdinMonitor) Stop() error {
	sm.cancel()
	return nil
}

func (sm *StdinMonitor) loop() {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== capture console ===")
	fmt.Println("  1 or start - start capture")
	fmt.Println("  2 or stop  - stop capture")
	fmt.Println("  3 or test  - capture a fixed-duration test clip")
	fmt.Println("  q or quit  - exit")

	for {
		select {
		case <-sm.ctx.Done():
			return
		default:
			fmt.Print("> ")
			input, err := reader.ReadString('\n')
			if err != nil {
				log.Printf("control: read stdin: %v", err)
				continue
			}
			sm.dispatch(strings.ToLower(strings.TrimSpace(input)))
		}
	}
}

func (sm *StdinMonitor) dispatch(input string) {
	if input == "" {
		return
	}

	var cmd Command
	switch input {
	case "1", "start":
		cmd = CmdStartCapture
	case "2", "stop":
		cmd = CmdStopCapture
	case "3", "test":
		cmd = CmdTestCapture
	case "q", "quit", "exit":
		sm.handler.HandleCommand(CmdQuit)
		return
	default:
		fmt.Printf("unknown command: %s\n", input)
		return
	}
	sm.handler.HandleCommand(cmd)
}
