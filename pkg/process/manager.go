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
	"time"

	"github.com/Veraticus/autolinks/pkg/logger"
)

// WrappedEnv marks processes started by the wrapper.
const WrappedEnv = "AUTOLINKS_WRAPPED"

// ErrAlreadyWrapped is returned when the wrapper would wrap itself.
var ErrAlreadyWrapped = errors.New("already wrapped by autolinks")

// drainTimeout bounds how long Wait keeps reading output after the child
// exits, for children that leave the terminal open in background processes.
const drainTimeout = 2 * time.Second

// Manager runs a command under a PTY and copies its output through a writer
type Manager struct {
	ptyManager PTY
	stdin      io.Reader
	output     io.Writer
	logger     logger.Logger
	exitCode   int
	mu         sync.Mutex
	sigChan    chan os.Signal
	done       chan struct{}
	copyDone   chan struct{}
}

// NewManager creates a new process manager. Output of the child is written
// to output, typically a monitor.LinkWriter in front of os.Stdout.
func NewManager(output io.Writer, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Noop()
	}
	return &Manager{
		ptyManager: NewPTYManager(log),
		stdin:      os.Stdin,
		output:     output,
		logger:     log,
		done:       make(chan struct{}),
	}
}

// Start starts the command
func (m *Manager) Start(command string, args []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if os.Getenv(WrappedEnv) == "1" {
		return ErrAlreadyWrapped
	}

	env := append(os.Environ(), WrappedEnv+"=1")

	if err := m.ptyManager.Start(command, args, env); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	m.copyDone = make(chan struct{})
	go func() {
		defer close(m.copyDone)
		if err := m.ptyManager.CopyIO(m.stdin, m.output); err != nil {
			m.logger.Error("I/O error", logger.KeyError, err)
		}
	}()

	m.setupSignalForwarding()

	return nil
}

// Wait waits for the process to exit and its remaining output to be copied
func (m *Manager) Wait() error {
	if m.ptyManager == nil {
		return fmt.Errorf("process not started")
	}

	err := m.ptyManager.Wait()

	m.mu.Lock()
	if state := m.ptyManager.ProcessState(); state != nil {
		m.exitCode = state.ExitCode()
	}
	copyDone := m.copyDone
	m.mu.Unlock()

	if copyDone != nil {
		select {
		case <-copyDone:
		case <-time.After(drainTimeout):
			m.logger.Debug("output still open after exit, closing PTY")
		}
	}

	_ = m.ptyManager.Close()

	close(m.done)
	m.cleanupSignals()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A non-zero exit is reported through ExitCode.
		return nil
	}
	return err
}

// ExitCode returns the exit code of the process
func (m *Manager) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCode
}

// setupSignalForwarding sets up signal forwarding to the child process.
// SIGWINCH is handled by the PTY manager.
func (m *Manager) setupSignalForwarding() {
	m.sigChan = make(chan os.Signal, 1)
	signal.Notify(m.sigChan,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGQUIT,
		syscall.SIGUSR1,
		syscall.SIGUSR2,
	)

	go m.forwardSignals()
}

// forwardSignals forwards signals to the child process
func (m *Manager) forwardSignals() {
	for {
		select {
		case sig := <-m.sigChan:
			if m.ptyManager != nil && m.ptyManager.Process() != nil {
				if err := m.ptyManager.Process().Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
					m.logger.Warn("signal forward error", logger.KeyError, err)
				}
			}
		case <-m.done:
			return
		}
	}
}

// cleanupSignals stops signal forwarding
func (m *Manager) cleanupSignals() {
	if m.sigChan != nil {
		signal.Stop(m.sigChan)
	}
}

// Stop restores the terminal and asks the child to terminate
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ptyManager == nil {
		return nil
	}

	if proc := m.ptyManager.Process(); proc != nil {
		if err := proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return proc.Kill()
		}
	}

	return nil
}
