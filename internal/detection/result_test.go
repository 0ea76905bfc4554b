package detection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSetJSONPreservesPresence(t *testing.T) {
	t.Parallel()

	rs := ResultSet{
		ComponentVoice: Present(0.8, 0.9),
		ComponentVideo: Absent("detector timeout"),
	}

	encoded, err := json.Marshal(rs)
	require.NoError(t, err)

	var decoded ResultSet
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	assert.True(t, decoded[ComponentVoice].IsPresent())
	assert.InDelta(t, 0.8, decoded[ComponentVoice].Score(), 1e-9)
	assert.False(t, decoded[ComponentVideo].IsPresent())
	assert.Equal(t, "detector timeout", decoded[ComponentVideo].Reason())
}

func TestPresentCount(t *testing.T) {
	t.Parallel()

	rs := ResultSet{
		ComponentVoice:    Present(0.5, 0.5),
		ComponentVideo:    Absent("n/a"),
		ComponentLiveness: Present(0.1, 0.7),
	}
	assert.Equal(t, 2, rs.PresentCount())
	assert.Equal(t, 0, ResultSet{}.PresentCount())
}

func TestResultString(t *testing.T) {
	t.Parallel()

	assert.Contains(t, Present(0.5, 0.75).String(), "score=0.500")
	assert.Contains(t, Absent("timeout").String(), "timeout")
}
