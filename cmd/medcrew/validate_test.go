package main

import (
	"bytes"
	"testing"

	"github.com/rahul/medcrew/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTasks(t *testing.T) {
	p, err := agent.NewPipeline(
		[]agent.Stage{
			{ID: "triage", Role: "Emergency physician"},
			{ID: "neuro", Role: "Neurologist"},
		},
		[]agent.Task{
			{ID: "anamnesis", Stage: "triage", Description: "{{.Input}}"},
			{ID: "differential", Stage: "neuro", Description: "rank", Context: []string{"anamnesis"}},
		},
	)
	require.NoError(t, err)

	var out bytes.Buffer
	printTasks(&out, p, "chat_assistant")

	got := out.String()
	assert.Contains(t, got, "Emergency physician")
	assert.Contains(t, got, "Neurologist")
	assert.Contains(t, got, "differential")
	assert.Contains(t, got, "Conversation stage: chat_assistant")
}
