package testutil

import (
	"sync"
	"testing"
	"time"
)

func TestMockRecorder(t *testing.T) {
	t.Run("records observations", func(t *testing.T) {
		mock := NewMockRecorder()

		mock.ObserveScan(time.Millisecond, 2)
		mock.ObserveScan(time.Millisecond, 3)
		mock.IncRuleFailure("invalid")
		mock.ObserveZones(4)

		if mock.Scans() != 2 {
			t.Errorf("Scans() = %d, want 2", mock.Scans())
		}
		if mock.Matches() != 5 {
			t.Errorf("Matches() = %d, want 5", mock.Matches())
		}
		if mock.Failures("invalid") != 1 {
			t.Errorf("Failures(invalid) = %d, want 1", mock.Failures("invalid"))
		}
		if mock.Failures("runtime") != 0 {
			t.Errorf("Failures(runtime) = %d, want 0", mock.Failures("runtime"))
		}
		if zones := mock.Zones(); len(zones) != 1 || zones[0] != 4 {
			t.Errorf("Zones() = %v, want [4]", zones)
		}
	})

	t.Run("concurrent use", func(t *testing.T) {
		mock := NewMockRecorder()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				mock.ObserveScan(0, 1)
			}()
		}
		wg.Wait()

		if mock.Scans() != 10 {
			t.Errorf("Scans() = %d, want 10", mock.Scans())
		}
	})
}

func TestSafeBuffer(t *testing.T) {
	var buf SafeBuffer

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = buf.Write([]byte("ab"))
		}()
	}
	wg.Wait()

	if buf.Len() != 10 {
		t.Errorf("Len() = %d, want 10", buf.Len())
	}
	if buf.String() != "ababababab" {
		t.Errorf("String() = %q", buf.String())
	}
}
