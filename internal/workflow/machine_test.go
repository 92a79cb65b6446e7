package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard-hq/taskboard/internal/workflow"
)

type light string

const (
	red    light = "red"
	green  light = "green"
	yellow light = "yellow"
	off    light = "off"
)

var lights = workflow.NewMachine(
	workflow.Transition[light]{Action: "go", From: []light{red}, To: green},
	workflow.Transition[light]{Action: "slow", From: []light{green}, To: yellow},
	workflow.Transition[light]{Action: "stop", From: []light{yellow}, To: red},
	workflow.Transition[light]{Action: "shutdown", From: []light{red, green}, To: off},
	workflow.Transition[light]{Action: "shutdown", From: []light{yellow}, To: off},
)

func TestMachine_Next(t *testing.T) {
	next, err := lights.Next("go", red)
	require.NoError(t, err)
	assert.Equal(t, green, next)

	_, err = lights.Next("go", green)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrConflict)

	we, ok := workflow.As(err)
	require.True(t, ok)
	assert.Equal(t, workflow.ReasonInvalidState, we.Reason)
	assert.Equal(t, "go not allowed from green", we.Detail)
}

func TestMachine_MergesRepeatedActions(t *testing.T) {
	for _, s := range []light{red, green, yellow} {
		assert.True(t, lights.Can("shutdown", s), s)
	}
	assert.False(t, lights.Can("shutdown", off))
}

func TestMachine_UnknownAction(t *testing.T) {
	assert.False(t, lights.Can("blink", red))
	_, ok := lights.Target("blink")
	assert.False(t, ok)

	to, ok := lights.Target("stop")
	assert.True(t, ok)
	assert.Equal(t, red, to)
}
