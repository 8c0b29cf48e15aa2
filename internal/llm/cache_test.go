package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rahul/medcrew/internal/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	calls int
	err   error
}

func (c *countingClient) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return systemPrompt + "|" + userPrompt, nil
}

func TestCachedClient(t *testing.T) {
	next := &countingClient{}
	client := NewCachedClient(next, time.Minute)
	defer client.Close()

	ctx := context.Background()
	first, err := client.Complete(ctx, "sys", "case")
	require.NoError(t, err)
	second, err := client.Complete(ctx, "sys", "case")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1, client.Len())

	// The key covers both prompts.
	_, err = client.Complete(ctx, "sy", "scase")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedClient_ErrorsAreNotCached(t *testing.T) {
	next := &countingClient{err: errors.New("boom")}
	client := NewCachedClient(next, time.Minute)
	defer client.Close()

	for i := 0; i < 2; i++ {
		_, err := client.Complete(context.Background(), "s", "u")
		assert.Error(t, err)
	}
	assert.Equal(t, 2, next.calls)
	assert.Zero(t, client.Len())
}

type scriptedClient struct {
	replies []string
	calls   int
}

func (c *scriptedClient) Complete(context.Context, string, string) (string, error) {
	out := c.replies[c.calls]
	c.calls++
	return out, nil
}

func TestCachedClient_BlankRepliesAreNotCached(t *testing.T) {
	next := &scriptedClient{replies: []string{" \n", "real answer", "unused"}}
	client := NewCachedClient(next, time.Hour)
	defer client.Close()

	ctx := context.Background()
	out, err := client.Complete(ctx, "s", "u")
	require.NoError(t, err)
	assert.Equal(t, " \n", out)
	assert.Zero(t, client.Len())

	out, err = client.Complete(ctx, "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "real answer", out)

	out, err = client.Complete(ctx, "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "real answer", out)
	assert.Equal(t, 2, next.calls)
}

func TestCachedClient_RunnerRetryReachesService(t *testing.T) {
	next := &scriptedClient{replies: []string{"", "real answer"}}
	client := NewCachedClient(next, time.Hour)
	defer client.Close()

	p, err := agent.NewPipeline(
		[]agent.Stage{{ID: "s", Role: "Clinician"}},
		[]agent.Task{{ID: "t", Stage: "s", Description: "{{.Input}}"}},
	)
	require.NoError(t, err)
	r, err := agent.NewRunner(p, agent.RunnerConfig{
		Completer:   client,
		MaxAttempts: 3,
		NewBackOff:  func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), "headache")
	require.NoError(t, err)
	assert.Equal(t, "real answer", report.Final)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 2, report.Results[0].Attempts)
}
