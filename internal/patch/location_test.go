package patch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouton0815/aggregate-event-duality/internal/model"
)

func TestDiffLocationNewCity(t *testing.T) {
	entry, ok := DiffLocation(nil, 1, 0)
	require.True(t, ok)
	require.NotNil(t, entry)
	b, err := json.Marshal(entry)
	require.NoError(t, err)
	// A fresh city carries both counters, even a zero one.
	assert.JSONEq(t, `{"total":1,"married":0}`, string(b))
}

func TestDiffLocationVanishedCity(t *testing.T) {
	before := &model.Location{City: "Berlin", Total: 1, Married: 0}
	entry, ok := DiffLocation(before, 0, 0)
	require.True(t, ok)
	assert.Nil(t, entry)
}

func TestDiffLocationChangedTotal(t *testing.T) {
	before := &model.Location{City: "Berlin", Total: 1, Married: 0}
	entry, ok := DiffLocation(before, 2, 0)
	require.True(t, ok)
	b, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":2}`, string(b))
}

func TestDiffLocationChangedMarried(t *testing.T) {
	before := &model.Location{City: "Berlin", Total: 2, Married: 0}
	entry, ok := DiffLocation(before, 2, 2)
	require.True(t, ok)
	b, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.JSONEq(t, `{"married":2}`, string(b))
}

func TestDiffLocationUnchanged(t *testing.T) {
	before := &model.Location{City: "Berlin", Total: 2, Married: 2}
	_, ok := DiffLocation(before, 2, 2)
	assert.False(t, ok)
}

func TestDiffLocationNoRowNoCount(t *testing.T) {
	_, ok := DiffLocation(nil, 0, 0)
	assert.False(t, ok)
}
