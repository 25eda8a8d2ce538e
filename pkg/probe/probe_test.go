package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAndAnalyze(t *testing.T) {
	probes := []Probe{
		{Name: "ok", Check: func(context.Context) error { return nil }, Critical: true},
		{Name: "soft", Check: func(context.Context) error { return errors.New("degraded") }, Critical: false},
	}

	results := Run(context.Background(), probes)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Error)
	assert.Error(t, results[1].Error)

	// Non-critical failures do not block startup.
	assert.NoError(t, AnalyzeResults(results))
}

func TestCriticalFailureBlocksStartup(t *testing.T) {
	probes := []Probe{
		{Name: "db", Check: func(context.Context) error { return errors.New("locked") }, Critical: true},
	}

	err := AnalyzeResults(Run(context.Background(), probes))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}
