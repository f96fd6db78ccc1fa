package process

import (
	"errors"
	"io"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/Veraticus/autolinks/pkg/logger"
)

// MockPTYManager is a mock implementation of PTYManager for testing
type MockPTYManager struct {
	started      bool
	waited       bool
	closed       bool
	startError   error
	waitError    error
	process      *os.Process
	processState *os.ProcessState
	pty          *os.File
	output       string
	startEnv     []string
}

func (m *MockPTYManager) Start(command string, args []string, env []string) error {
	if m.startError != nil {
		return m.startError
	}
	m.started = true
	m.startEnv = env
	return nil
}

func (m *MockPTYManager) Wait() error {
	m.waited = true
	return m.waitError
}

func (m *MockPTYManager) ProcessState() *os.ProcessState {
	return m.processState
}

func (m *MockPTYManager) Process() *os.Process {
	return m.process
}

func (m *MockPTYManager) GetPTY() *os.File {
	return m.pty
}

func (m *MockPTYManager) CopyIO(stdin io.Reader, stdout io.Writer) error {
	if m.output != "" && stdout != nil {
		_, err := io.WriteString(stdout, m.output)
		return err
	}
	return nil
}

func (m *MockPTYManager) Close() error {
	m.closed = true
	return nil
}

func newTestManager(p PTY, out io.Writer) *Manager {
	m := NewManager(out, nil)
	m.ptyManager = p
	m.stdin = nil
	return m
}

func TestManager_Start(t *testing.T) {
	tests := []struct {
		name       string
		envWrapped string
		startError error
		wantError  error
		errorMsg   string
	}{
		{
			name: "successful start",
		},
		{
			name:       "already wrapped",
			envWrapped: "1",
			wantError:  ErrAlreadyWrapped,
		},
		{
			name:       "start error",
			startError: errors.New("start failed"),
			errorMsg:   "failed to start process",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(WrappedEnv, tt.envWrapped)

			mockPTY := &MockPTYManager{startError: tt.startError}
			manager := newTestManager(mockPTY, io.Discard)

			err := manager.Start("test", []string{"arg1"})

			switch {
			case tt.wantError != nil:
				if !errors.Is(err, tt.wantError) {
					t.Errorf("expected %v but got %v", tt.wantError, err)
				}
			case tt.errorMsg != "":
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q but got %v", tt.errorMsg, err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !mockPTY.started {
					t.Error("PTY manager was not started")
				}
				found := false
				for _, kv := range mockPTY.startEnv {
					if kv == WrappedEnv+"=1" {
						found = true
					}
				}
				if !found {
					t.Errorf("expected %s=1 in child environment", WrappedEnv)
				}
				_ = manager.Wait()
			}
		})
	}
}

func TestManager_OutputIsCopied(t *testing.T) {
	t.Setenv(WrappedEnv, "")

	var out strings.Builder
	mockPTY := &MockPTYManager{output: "ISSUE-1\n", processState: &os.ProcessState{}}
	manager := newTestManager(mockPTY, &out)

	if err := manager.Start("test", nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := manager.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	if out.String() != "ISSUE-1\n" {
		t.Errorf("expected output to be copied, got %q", out.String())
	}
	if !mockPTY.closed {
		t.Error("expected PTY to be closed after wait")
	}
}

func TestManager_Wait(t *testing.T) {
	tests := []struct {
		name         string
		ptyManager   *MockPTYManager
		wantError    bool
		wantExitCode int
	}{
		{
			name: "successful wait with exit code 0",
			ptyManager: &MockPTYManager{
				processState: &os.ProcessState{},
			},
			wantExitCode: 0,
		},
		{
			name: "wait with error",
			ptyManager: &MockPTYManager{
				waitError: errors.New("wait failed"),
			},
			wantError: true,
		},
		{
			name:      "process not started",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := &Manager{
				done: make(chan struct{}),
			}

			// Only set ptyManager if not nil to avoid typed nil interface issue
			if tt.ptyManager != nil {
				manager.ptyManager = tt.ptyManager
			}

			err := manager.Wait()

			if tt.wantError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ptyManager.waited {
				t.Error("PTY manager Wait was not called")
			}
			if manager.ExitCode() != tt.wantExitCode {
				t.Errorf("expected exit code %d but got %d", tt.wantExitCode, manager.ExitCode())
			}
		})
	}
}

func TestManager_SignalForwarding(t *testing.T) {
	mockPTY := &MockPTYManager{
		process: &os.Process{Pid: os.Getpid()},
	}

	manager := &Manager{
		ptyManager: mockPTY,
		logger:     logger.Noop(),
		done:       make(chan struct{}),
		sigChan:    make(chan os.Signal, 1),
	}

	stopped := make(chan struct{})
	go func() {
		manager.forwardSignals()
		close(stopped)
	}()

	// SIGWINCH is harmless to deliver to the test process.
	manager.sigChan <- syscall.SIGWINCH
	time.Sleep(10 * time.Millisecond)

	close(manager.done)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Error("forwardSignals did not stop")
	}
}

func TestManager_Stop(t *testing.T) {
	tests := []struct {
		name    string
		process *os.Process
	}{
		{
			name:    "stop with nil process",
			process: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := newTestManager(&MockPTYManager{process: tt.process}, io.Discard)

			if err := manager.Stop(); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
