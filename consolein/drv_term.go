// drv_term.go uses the Termbox library to handle console-based input.
//
// A goroutine is launched which collects any keyboard input and saves
// that to a buffer where it can be peeled off on-demand.

package consolein

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	termbox "github.com/nsf/termbox-go"
	"golang.org/x/term"
)

// TermboxInput is an alternative input driver, using termbox.
type TermboxInput struct {

	// oldState contains the state of the terminal, before switching
	// to RAW mode.
	oldState *term.State

	// cancel stops the polling goroutine.
	cancel context.CancelFunc

	// mu guards keyBuffer, which is filled by the polling goroutine
	// and drained by the caller.
	mu        sync.Mutex
	keyBuffer []byte

	// stuffed holds fake input which is returned ahead of anything
	// typed.
	stuffed []byte
}

// Setup initializes termbox and starts polling the keyboard.
func (ti *TermboxInput) Setup() error {
	var err error

	ti.oldState, err = term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("error making raw terminal: %s", err)
	}

	err = termbox.Init()
	if err != nil {
		return fmt.Errorf("error initializing termbox: %s", err)
	}

	// Termbox hides the cursor by default; show it again.
	fmt.Printf("\x1b[?25h")

	ctx, cancel := context.WithCancel(context.Background())
	ti.cancel = cancel

	go ti.pollKeyboard(ctx)
	return nil
}

// pollKeyboard runs in a goroutine and collects keyboard input into a
// buffer where it will be read from in the future.
func (ti *TermboxInput) pollKeyboard(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch ev := termbox.PollEvent(); ev.Type {
		case termbox.EventKey:
			ti.mu.Lock()
			if ev.Ch != 0 {
				ti.keyBuffer = append(ti.keyBuffer, byte(ev.Ch))
			} else {
				ti.keyBuffer = append(ti.keyBuffer, byte(ev.Key))
			}
			ti.mu.Unlock()
		}
	}
}

// TearDown stops the polling goroutine and restores the terminal.
func (ti *TermboxInput) TearDown() error {
	if ti.cancel != nil {
		ti.cancel()
		ti.cancel = nil
	}

	termbox.Close()

	if ti.oldState != nil {
		state := ti.oldState
		ti.oldState = nil
		return term.Restore(int(os.Stdin.Fd()), state)
	}
	return nil
}

// PendingInput returns true if there is pending keyboard input.
func (ti *TermboxInput) PendingInput() bool {
	if len(ti.stuffed) > 0 {
		return true
	}
	ti.mu.Lock()
	defer ti.mu.Unlock()
	return len(ti.keyBuffer) > 0
}

// BlockForCharacter returns the next character from the console,
// blocking until one is available.
func (ti *TermboxInput) BlockForCharacter() (byte, error) {
	if len(ti.stuffed) > 0 {
		c := ti.stuffed[0]
		ti.stuffed = ti.stuffed[1:]
		return c, nil
	}

	for {
		ti.mu.Lock()
		if len(ti.keyBuffer) > 0 {
			c := ti.keyBuffer[0]
			ti.keyBuffer = ti.keyBuffer[1:]
			ti.mu.Unlock()
			return c, nil
		}
		ti.mu.Unlock()
		time.Sleep(1 * time.Millisecond)
	}
}

// StuffInput inserts fake values into our input-buffer.
func (ti *TermboxInput) StuffInput(input string) {
	ti.stuffed = append(ti.stuffed, input...)
}

// GetName is part of the driver API.
func (ti *TermboxInput) GetName() string {
	return "term"
}

// init registers our driver, by name.
func init() {
	Register("term", func() ConsoleInput {
		return new(TermboxInput)
	})
}
