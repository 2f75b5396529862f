package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	m := New()
	m.NextWALID = 42

	meta := &Metadata{
		TableName: "events",
		ID:        7,
		Offset:    1000,
		Len:       500,
		Subpartitions: []SubpartitionMetadata{
			{Key: "7_0", Columns: []string{"timestamp", "user_id"}, SizeBytes: 4096},
			{Key: "7_1", Columns: []string{"payload"}, SizeBytes: 8192},
		},
		ColumnSubpartition: map[string]int{
			"timestamp": 0,
			"user_id":   0,
			"payload":   1,
		},
	}
	m.AddPartition(meta)

	second := &Metadata{
		TableName:          "events",
		ID:                 8,
		Offset:             1500,
		Len:                250,
		Subpartitions:      []SubpartitionMetadata{{Key: "8_0", Columns: []string{"timestamp"}, SizeBytes: 2048}},
		ColumnSubpartition: map[string]int{"timestamp": 0},
	}
	m.AddPartition(second)

	blob, err := Serialize(m)
	require.NoError(t, err)

	restored, err := Deserialize(blob)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), restored.NextWALID)

	partitions := restored.Partitions("events")
	require.Len(t, partitions, 2)
	assert.Equal(t, uint64(7), partitions[0].ID)
	assert.Equal(t, uint64(8), partitions[1].ID)

	key, err := partitions[0].SubpartitionKey("user_id")
	require.NoError(t, err)
	assert.Equal(t, "7_0", key)

	key, err = partitions[0].SubpartitionKey("payload")
	require.NoError(t, err)
	assert.Equal(t, "7_1", key)
}

func TestDeserializeEmptyBlob(t *testing.T) {
	m, err := Deserialize(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m.NextWALID)
}

func TestMetaStoreAllocateAndObserveWALID(t *testing.T) {
	m := New()
	assert.Equal(t, uint64(0), m.AllocateWALID())
	assert.Equal(t, uint64(1), m.AllocateWALID())

	m.ObserveWALID(10)
	assert.Equal(t, uint64(11), m.NextWALID)

	m.ObserveWALID(3)
	assert.Equal(t, uint64(11), m.NextWALID, "observing a lower id must not move the watermark backwards")
}

func TestMetaStoreRemovePartitions(t *testing.T) {
	m := New()
	m.AddPartition(&Metadata{TableName: "t", ID: 1, ColumnSubpartition: map[string]int{}})
	m.AddPartition(&Metadata{TableName: "t", ID: 2, ColumnSubpartition: map[string]int{}})
	m.RemovePartitions("t", []uint64{1})

	partitions := m.Partitions("t")
	require.Len(t, partitions, 1)
	assert.Equal(t, uint64(2), partitions[0].ID)
}
