package control

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/lowlatency/llq/internal/config"
)

// GpioMonitor polls a GPIO pin via sysfs for a falling edge, the way an
// embedded capture device wires a physical button to "start recording"
// instead of a control file or terminal.
type GpioMonitor struct {
	config  *config.GpioConfig
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewGpioMonitor creates a GPIO-backed control monitor.
func NewGpioMonitor(parentCtx context.Context, cfg *config.GpioConfig, handler Handler) *GpioMonitor {
	ctx, cancel := context.WithCancel(parentCtx)
	return &GpioMonitor{config: cfg, handler: handler, ctx: ctx, cancel: cancel}
}

// Start exports and configures the pin, then begins polling it.
func (gm *GpioMonitor) Start() error {
	if err := gm.initGpio(); err != nil {
		return fmt.Errorf("control: init gpio %d: %w", gm.config.PinNumber, err)
	}
	go gm.loop()
	log.Printf("control: gpio monitor started on pin %d (poll %v)", gm.config.PinNumber, gm.config.PollInterval)
	return nil
}

// Stop ends the polling loop.
func (gm *GpioMonitor) Stop() error {
	gm.cancel()
	return nil
}

func (gm *GpioMonitor) initGpio() error {
	pinStr := fmt.Sprintf("%d", gm.config.PinNumber)
	gpioDir := fmt.Sprintf("/sys/class/gpio/gpio%d", gm.config.PinNumber)

	if _, err := os.Stat(gpioDir); os.IsNotExist(err) {
		if err := os.WriteFile("/sys/class/gpio/export", []byte(pinStr), 0644); err != nil {
			return fmt.Errorf("export gpio %d: %w", gm.config.PinNumber, err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	directionPath := fmt.Sprintf("%s/direction", gpioDir)
	if err := os.WriteFile(directionPath, []byte("in"), 0644); err != nil {
		return fmt.Errorf("set gpio %d direction: %w", gm.config.PinNumber, err)
	}
	return nil
}

func (gm *GpioMonitor) readValue() (int, error) {
	valuePath := fmt.Sprintf("/sys/class/gpio/gpio%d/value", gm.config.PinNumber)
	data, err := os.ReadFile(valuePath)
	if err != nil {
		return -1, err
	}
	if strings.TrimSpace(string(data)) == "0" {
		return 0, nil
	}
	return 1, nil
}

// loop polls for a high-to-low transition and treats it as a start-capture
// trigger; a second trigger stops capture, toggling like a press-to-record
// button.
func (gm *GpioMonitor) loop() {
	ticker := time.NewTicker(gm.config.PollInterval)
	defer ticker.Stop()

	prev, err := gm.readValue()
	if err != nil {
		log.Printf("control: read initial gpio state: %v", err)
		prev = 1
	}

	capturing := false
	for {
		select {
		case <-gm.ctx.Done():
			return
		case <-ticker.C:
			cur, err := gm.readValue()
			if err != nil {
				log.Printf("control: read gpio value: %v", err)
				continue
			}

			if prev == 1 && cur == 0 {
				if capturing {
					gm.handler.HandleCommand(CmdStopCapture)
				} else {
					gm.handler.HandleCommand(CmdStartCapture)
				}
				capturing = !capturing
			}
			prev = cur
		}
	}
}
