package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	seg := &Segment{
		ID: 5,
		Tables: []TableBatch{
			{
				TableName: "events",
				RowCount:  4,
				Columns: map[string]ColumnData{
					"ts":      {Kind: KindDenseI64, DenseI64: []int64{1, 2, 3, 4}},
					"value":   {Kind: KindDenseF64, DenseF64: []float64{1.5, -2.25, 0, 3.75}},
					"err_msg": {Kind: KindSparseF64, SparseF64: []SparseF64{{Index: 1, Value: 9.5}}},
					"retries": {Kind: KindSparseI64, SparseI64: []SparseI64{{Index: 0, Value: -7}, {Index: 3, Value: 2}}},
					"tag":     {Kind: KindMixed, Mixed: []string{"a", "b", "c", "d"}},
				},
			},
		},
	}
	require.NoError(t, seg.Validate())

	blob, err := Serialize(seg)
	require.NoError(t, err)

	restored, err := Deserialize(blob)
	require.NoError(t, err)
	require.NoError(t, restored.Validate())

	assert.Equal(t, uint64(5), restored.ID)
	require.Len(t, restored.Tables, 1)
	table := restored.Tables[0]
	assert.Equal(t, "events", table.TableName)
	assert.Equal(t, uint64(4), table.RowCount)

	assert.Equal(t, []int64{1, 2, 3, 4}, table.Columns["ts"].DenseI64)
	assert.Equal(t, []float64{1.5, -2.25, 0, 3.75}, table.Columns["value"].DenseF64)
	assert.Equal(t, []SparseF64{{Index: 1, Value: 9.5}}, table.Columns["err_msg"].SparseF64)
	assert.Equal(t, []SparseI64{{Index: 0, Value: -7}, {Index: 3, Value: 2}}, table.Columns["retries"].SparseI64)
	assert.Equal(t, []string{"a", "b", "c", "d"}, table.Columns["tag"].Mixed)
}

func TestDeserializeEmptySegment(t *testing.T) {
	seg, err := Deserialize(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), seg.ID)
	assert.Empty(t, seg.Tables)
}

func TestValidateRejectsShortDenseColumn(t *testing.T) {
	seg := &Segment{
		Tables: []TableBatch{
			{
				TableName: "t",
				RowCount:  3,
				Columns: map[string]ColumnData{
					"a": {Kind: KindDenseI64, DenseI64: []int64{1, 2}},
				},
			},
		},
	}
	err := seg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeSparseIndex(t *testing.T) {
	seg := &Segment{
		Tables: []TableBatch{
			{
				TableName: "t",
				RowCount:  2,
				Columns: map[string]ColumnData{
					"a": {Kind: KindSparseI64, SparseI64: []SparseI64{{Index: 5, Value: 1}}},
				},
			},
		},
	}
	err := seg.Validate()
	require.Error(t, err)
}
