package pid

import (
	"os"
	"os/exec"
	"strconv"
	"testing"

	"codeberg.org/mutker/envirod/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Write(dir))
	b, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(b))

	// Rewriting our own pid is not a conflict.
	require.NoError(t, Write(dir))

	require.NoError(t, Remove(dir))
	_, err = os.Stat(Path(dir))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, Remove(dir))
}

func TestWriteAlreadyRunning(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte(strconv.Itoa(cmd.Process.Pid)), 0o600))

	err := Write(dir)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteReplacesStaleFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "garbage", content: "not-a-pid"},
		{name: "non positive", content: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(Path(dir), []byte(tt.content), 0o600))

			require.NoError(t, Write(dir))
			b, err := os.ReadFile(Path(dir))
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(os.Getpid()), string(b))
		})
	}
}
