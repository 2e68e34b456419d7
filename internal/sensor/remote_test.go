package sensor

import (
	"context"
	"testing"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRemoteSource(outputs map[string]string, errs map[string]error) *RemoteSource {
	s := NewRemoteSource(RemoteConfig{
		Host:       "r730",
		Command:    "cpu-temps",
		GPUCommand: "gpu-temps",
	})
	s.run = func(_ context.Context, command string) (string, error) {
		if err := errs[command]; err != nil {
			return "", err
		}
		return outputs[command], nil
	}

	return s
}

func TestRemoteSampleParsesBothClasses(t *testing.T) {
	s := testRemoteSource(map[string]string{
		"cpu-temps": "61\n63\n",
		"gpu-temps": "72.5\n",
	}, nil)

	readings, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 3)

	assert.Equal(t, ClassCPU, readings[0].Class)
	assert.InDelta(t, 61, readings[0].Value, 0.001)
	assert.InDelta(t, 63, readings[1].Value, 0.001)
	assert.Equal(t, ClassGPU, readings[2].Class)
	assert.InDelta(t, 72.5, readings[2].Value, 0.001)
	assert.Equal(t, "remote:r730", readings[0].Source)
}

func TestRemoteSampleSkipsNonNumericLines(t *testing.T) {
	s := testRemoteSource(map[string]string{
		"cpu-temps": "61\nsensors: command not found\n\n  63  \n",
	}, nil)
	s.cfg.GPUCommand = ""

	readings, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.InDelta(t, 61, readings[0].Value, 0.001)
	assert.InDelta(t, 63, readings[1].Value, 0.001)
}

func TestRemoteSampleFailsWhenCPUCommandFails(t *testing.T) {
	s := testRemoteSource(nil, map[string]error{
		"cpu-temps": errors.New().New(errors.ErrSampleSource),
	})

	_, err := s.Sample(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrSampleSource))
}

func TestRemoteSampleDegradesWhenGPUCommandFails(t *testing.T) {
	s := testRemoteSource(map[string]string{
		"cpu-temps": "61\n",
	}, map[string]error{
		"gpu-temps": errors.New().New(errors.ErrSampleSource),
	})

	readings, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, ClassCPU, readings[0].Class)
}

func TestRemoteSampleWithoutGPUCommandNeverRunsIt(t *testing.T) {
	var commands []string
	s := NewRemoteSource(RemoteConfig{Host: "r730", Command: "cpu-temps"})
	s.run = func(_ context.Context, command string) (string, error) {
		commands = append(commands, command)
		return "60\n", nil
	}

	_, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu-temps"}, commands)
}

func TestExpandPath(t *testing.T) {
	assert.Equal(t, "/etc/key", expandPath("/etc/key"))
	expanded := expandPath("~/.ssh/id_ed25519")
	assert.NotContains(t, expanded, "~")
	assert.Contains(t, expanded, ".ssh/id_ed25519")
}
