package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Veraticus/autolinks/pkg/logger"
	"github.com/creack/pty"
	"golang.org/x/term"
)

// PTYManager handles PTY-based process execution
type PTYManager struct {
	cmd         *exec.Cmd
	pty         *os.File
	logger      logger.Logger
	mu          sync.Mutex
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	restoreFunc func()
}

// Ensure PTYManager implements PTY
var _ PTY = (*PTYManager)(nil)

// NewPTYManager creates a new PTY manager
func NewPTYManager(log logger.Logger) *PTYManager {
	if log == nil {
		log = logger.Noop()
	}
	return &PTYManager{
		logger:   log,
		stopChan: make(chan struct{}),
	}
}

// Start starts a process with PTY
func (p *PTYManager) Start(command string, args []string, env []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("process already started")
	}

	p.cmd = exec.Command(command, args...)
	p.cmd.Env = env

	var err error
	p.pty, err = pty.Start(p.cmd)
	if err != nil {
		p.cmd = nil
		return fmt.Errorf("failed to start PTY: %w", err)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		if err := p.copyTerminalSize(); err != nil {
			p.logger.Debug("failed to copy terminal size", logger.KeyError, err)
		}
		p.wg.Add(1)
		go p.monitorTerminalSize()
	}

	return nil
}

// GetPTY returns the PTY file descriptor
func (p *PTYManager) GetPTY() *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pty
}

// Wait waits for the process to complete. The PTY stays open so buffered
// output can still be read; call Close when done with it.
func (p *PTYManager) Wait() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()
	if cmd == nil {
		return fmt.Errorf("process not started")
	}

	err := cmd.Wait()

	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()

	return err
}

// ProcessState returns the process state
func (p *PTYManager) ProcessState() *os.ProcessState {
	if p.cmd == nil {
		return nil
	}
	return p.cmd.ProcessState
}

// Process returns the underlying process
func (p *PTYManager) Process() *os.Process {
	if p.cmd == nil {
		return nil
	}
	return p.cmd.Process
}

// Close restores the terminal and closes the PTY.
func (p *PTYManager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.restoreFunc != nil {
		p.restoreFunc()
		p.restoreFunc = nil
	}

	if p.pty == nil {
		return nil
	}
	err := p.pty.Close()
	p.pty = nil
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// copyTerminalSize copies the terminal size from stdin to the PTY
func (p *PTYManager) copyTerminalSize() error {
	size, err := pty.GetsizeFull(os.Stdin)
	if err != nil {
		return err
	}

	return pty.Setsize(p.pty, size)
}

// monitorTerminalSize monitors for terminal size changes
func (p *PTYManager) monitorTerminalSize() {
	defer p.wg.Done()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGWINCH)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			p.mu.Lock()
			if p.pty != nil {
				if err := p.copyTerminalSize(); err != nil {
					p.logger.Debug("failed to resize PTY", logger.KeyError, err)
				}
			}
			p.mu.Unlock()
		case <-p.stopChan:
			return
		}
	}
}

// CopyIO copies stdin to the PTY and PTY output to stdout until the output
// side ends. A terminal stdin is put into raw mode for the duration.
func (p *PTYManager) CopyIO(stdin io.Reader, stdout io.Writer) error {
	p.mu.Lock()
	if p.pty == nil {
		p.mu.Unlock()
		return fmt.Errorf("PTY not initialized")
	}
	ptyFile := p.pty
	p.mu.Unlock()

	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if state, err := term.MakeRaw(int(file.Fd())); err == nil {
			restore := func() { _ = term.Restore(int(file.Fd()), state) }
			p.mu.Lock()
			p.restoreFunc = restore
			p.mu.Unlock()
		} else {
			p.logger.Debug("failed to set raw mode", logger.KeyError, err)
		}
	}

	// The stdin copy blocks on reads that never return once the child is
	// gone, so only the output side is waited on.
	if stdin != nil {
		go func() {
			_, _ = io.Copy(ptyFile, stdin)
		}()
	}

	_, err := io.Copy(stdout, ptyFile)
	if err != nil && !isPTYClosed(err) {
		return fmt.Errorf("stdout copy error: %w", err)
	}
	return nil
}

// isPTYClosed reports whether err is how a PTY master signals that the child
// side has gone away.
func isPTYClosed(err error) bool {
	return errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.EOF)
}
