package diskcache

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/column"
	"github.com/nimbusdb/nimbusdb/pkg/nimbuslog"
	"github.com/nimbusdb/nimbusdb/pkg/nimbusmetrics"
)

type fakeLoader struct {
	mu    sync.Mutex
	calls int
	cols  map[string]*column.Column
}

func newFakeLoader() *fakeLoader { return &fakeLoader{cols: make(map[string]*column.Column)} }

func (f *fakeLoader) LoadColumn(_ context.Context, table string, partitionID uint64, _ string, columnName string) (*column.Column, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	col, err := column.BuildIntColumn(columnName, []int64{int64(partitionID)}, nil)
	if err != nil {
		return nil, err
	}
	return col, nil
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestScheduler(loader Loader, budget int64) *Scheduler {
	return New(loader, budget, nimbuslog.Nop().Component("diskcache"), nimbusmetrics.NewRegistry())
}

func TestGetOrLoadCachesColumn(t *testing.T) {
	loader := newFakeLoader()
	s := newTestScheduler(loader, 0)

	col1, err := s.GetOrLoad(context.Background(), "t", 0, "s0", "x", 24)
	require.NoError(t, err)
	require.NotNil(t, col1)

	col2, err := s.GetOrLoad(context.Background(), "t", 0, "s0", "x", 24)
	require.NoError(t, err)
	assert.Same(t, col1, col2)
	assert.Equal(t, 1, loader.callCount())
}

func TestScheduleSequentialReadAndServiceReads(t *testing.T) {
	loader := newFakeLoader()
	s := newTestScheduler(loader, 0)

	snapshot := []PartitionColumns{
		{PartitionID: 0, Columns: map[string]ColumnRef{"x": {SubKey: "s0", SizeBytes: 8}}},
		{PartitionID: 1, Columns: map[string]ColumnRef{"x": {SubKey: "s0", SizeBytes: 8}}},
		{PartitionID: 2, Columns: map[string]ColumnRef{"x": {SubKey: "s0", SizeBytes: 8}}},
	}
	s.ScheduleSequentialRead("t", snapshot, []string{"x"}, 1<<20)
	require.NoError(t, s.ServiceReads(context.Background()))

	assert.Equal(t, 3, loader.callCount())

	col, err := s.GetOrLoad(context.Background(), "t", 1, "s0", "x", 8)
	require.NoError(t, err)
	require.NotNil(t, col)
	assert.Equal(t, 3, loader.callCount(), "partition 1's column was already loaded by ServiceReads")
}

func TestEvictReclaimsBudget(t *testing.T) {
	loader := newFakeLoader()
	s := newTestScheduler(loader, 0)

	for i := uint64(0); i < 4; i++ {
		_, err := s.GetOrLoad(context.Background(), "t", i, "s0", "x", 0)
		require.NoError(t, err)
	}
	before := s.ResidentBytes()
	assert.Positive(t, before)

	s.Evict(0)
	assert.Equal(t, int64(0), s.ResidentBytes())
}
