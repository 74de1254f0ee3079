package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	errs  []error
	calls int
}

func (g *scriptedGenerator) Generate(context.Context, string, string) (string, error) {
	i := g.calls
	g.calls++
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	return "ok", nil
}

var fastPolicy = RetryPolicy{Attempts: 3, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	g := &scriptedGenerator{errs: []error{ErrConnection, ErrTimeout}}
	out, err := WithRetry(g, fastPolicy, nil).Generate(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, g.calls)
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	g := &scriptedGenerator{errs: []error{ErrTimeout, ErrTimeout, ErrTimeout, nil}}
	_, err := WithRetry(g, fastPolicy, nil).Generate(context.Background(), "p", "")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, g.calls)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	for _, perm := range []error{ErrModel, fmt.Errorf("%w: status 500", ErrAPI)} {
		g := &scriptedGenerator{errs: []error{perm}}
		_, err := WithRetry(g, fastPolicy, nil).Generate(context.Background(), "p", "")
		assert.ErrorIs(t, err, perm)
		assert.Equal(t, 1, g.calls)
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 4*time.Second, p.MinWait)
	assert.Equal(t, 10*time.Second, p.MaxWait)
}

func TestClassifyTransport(t *testing.T) {
	assert.ErrorIs(t, ClassifyTransport(context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, ClassifyTransport(&net.OpError{Op: "dial", Err: errors.New("connection refused")}), ErrConnection)
	assert.ErrorIs(t, ClassifyTransport(errors.New("weird")), ErrAPI)
	assert.NoError(t, ClassifyTransport(nil))
}

func TestPrompts(t *testing.T) {
	sys := BuildSystemPrompt([]string{"Nabiał", "Inne"})
	assert.Contains(t, sys, "Nabiał, Inne")
	assert.Contains(t, sys, "store_name")

	user := BuildUserPrompt("  MLEKO 3,49  ")
	assert.Contains(t, user, "MLEKO 3,49")

	long := BuildUserPrompt(strings.Repeat("ż", maxPromptOCRChars+10))
	assert.Contains(t, long, "obcięto")
}
