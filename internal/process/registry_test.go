package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartReadStop(t *testing.T) {
	r := New(nil)
	pid, err := r.Start("echo one; echo two; echo three")
	require.NoError(t, err)
	require.Greater(t, pid, 0)

	require.Eventually(t, func() bool {
		lines, _ := r.Read(pid, 10)
		return len(lines) == 3
	}, time.Second, 10*time.Millisecond)

	lines, err := r.Read(pid, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, lines)

	require.NoError(t, r.Stop(pid))
}

func TestReadLastNReturnsOnlyTrailingLines(t *testing.T) {
	r := New(nil)
	pid, err := r.Start("for i in 1 2 3 4 5; do echo line$i; done")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lines, _ := r.Read(pid, 10)
		return len(lines) == 5
	}, time.Second, 10*time.Millisecond)

	lines, err := r.Read(pid, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"line4", "line5"}, lines)

	require.NoError(t, r.Stop(pid))
}

func TestUnknownPidErrorsOnAllOperations(t *testing.T) {
	r := New(nil)
	_, err := r.Read(99999, 1)
	assert.Error(t, err)
	assert.Error(t, r.Stop(99999))
}

func TestStopTerminatesLongRunningProcess(t *testing.T) {
	r := New(nil)
	pid, err := r.Start("sleep 30")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = r.Stop(pid)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}
