package importance

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

func sampleRanks() *AllRanks {
	all := NewAllRanks()
	all.Set(3, Scores{{"extra", 0.05}, {"strategy", 0.1}, {"min_samples_leaf", 0.6}, {"criterion", 0.25}})
	all.Set(6, Scores{{"criterion", 0.5}, {"min_samples_leaf", 0.5}})
	return all
}

func TestColumnOrder(t *testing.T) {
	grid, err := paramgrid.DefaultRegistry().GridFor(paramgrid.RandomForest, nil, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"min_samples_leaf", "criterion", "strategy", "extra"}, ColumnOrder(grid, sampleRanks()))
	assert.Equal(t, []string{"extra", "strategy", "min_samples_leaf", "criterion"}, ColumnOrder(paramgrid.Grid{}, sampleRanks()))
}

func TestWriteUnpivot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUnpivot(&buf, sampleRanks(), []string{"min_samples_leaf", "criterion", "strategy", "extra"}))
	assert.Equal(t, `task_id,param,value
3,min_samples_leaf,0.6
3,criterion,0.25
3,strategy,0.1
3,extra,0.05
6,min_samples_leaf,0.5
6,criterion,0.5
`, buf.String())
}

func TestWritePivot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePivot(&buf, sampleRanks(), []string{"min_samples_leaf", "criterion", "strategy", "extra"}))
	assert.Equal(t, `task_id,min_samples_leaf,criterion,strategy,extra
3,0.6,0.25,0.1,0.05
6,0.5,0.5,,
`, buf.String())
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePivot(&buf, NewAllRanks(), nil))
	assert.Equal(t, "task_id\n", buf.String())
}
