package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadyToStart_AllRequiredSatisfied(t *testing.T) {
	gate := NewPreparationGate([]string{"microphone", "speaker", "network"})

	ok, missing := gate.ReadyToStart(Checklist{
		"microphone": true,
		"speaker":    true,
		"network":    true,
	})
	require.True(t, ok)
	require.Empty(t, missing)
}

func TestReadyToStart_ReportsMissingItemsSorted(t *testing.T) {
	gate := NewPreparationGate([]string{"microphone", "speaker", "network"})

	ok, missing := gate.ReadyToStart(Checklist{
		"speaker": true,
		// microphone unsatisfied, network absent entirely
		"microphone": false,
	})
	require.False(t, ok)
	require.Equal(t, []string{"microphone", "network"}, missing)
}

func TestReadyToStart_ExtraItemsAreIgnored(t *testing.T) {
	gate := NewPreparationGate([]string{"microphone"})

	ok, missing := gate.ReadyToStart(Checklist{
		"microphone": true,
		"lighting":   false,
	})
	require.True(t, ok)
	require.Empty(t, missing)
}

func TestReadyToStart_NoRequiredItems(t *testing.T) {
	gate := NewPreparationGate(nil)

	ok, missing := gate.ReadyToStart(nil)
	require.True(t, ok)
	require.Empty(t, missing)
}
