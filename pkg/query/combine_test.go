package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusdb/nimbusdb/pkg/codec"
)

func mustParse(t *testing.T, sql string) *Query {
	t.Helper()
	q, err := Parse(sql)
	require.NoError(t, err)
	return q
}

// TestCombineSelectNullableColumnSurvivesTwoPartitions covers a two-partition
// combine of a nullable display column through the concat+permute fallback
// (ORDER BY on a Str column, which tournamentMergeSelect never takes): each
// partition's NullBitmap must still describe the right row once rows from
// both partitions are concatenated and reordered together.
func TestCombineSelectNullableColumnSurvivesTwoPartitions(t *testing.T) {
	q := mustParse(t, "SELECT name, amount FROM t ORDER BY name")
	names := []string{"name", "amount"}

	part1 := &BatchResult{
		ColumnNames: names,
		Columns: []codec.Section{
			codec.StrSection([]string{"bob"}),
			nullableF64(t, []float64{0}, []bool{false}),
		},
	}
	part2 := &BatchResult{
		ColumnNames: names,
		Columns: []codec.Section{
			codec.StrSection([]string{"alice"}),
			nullableF64(t, []float64{7.5}, []bool{true}),
		},
	}

	combined, err := CombineResults(q, []*BatchResult{part1, part2})
	require.NoError(t, err)

	nameCol := toWireColumn(combined.Columns[indexOf(combined.ColumnNames, "name")])
	amountCol := toWireColumn(combined.Columns[indexOf(combined.ColumnNames, "amount")])

	require.Equal(t, []string{"alice", "bob"}, nameCol.Strings)
	require.Len(t, amountCol.Nulls, 2)
	assert.False(t, amountCol.Nulls[0])
	assert.Equal(t, 7.5, amountCol.Floats[0])
	assert.True(t, amountCol.Nulls[1])
}

// TestCombineSelectTournamentMergePath exercises tournamentMergeSelect/
// mergeTwo directly: an I64 ORDER BY column with no nullable columns present
// takes the Merge/MergeKeep path rather than the concat+sortPermutation
// fallback, and must still produce correctly interleaved, LIMIT-truncated
// output.
func TestCombineSelectTournamentMergePath(t *testing.T) {
	q := mustParse(t, "SELECT id, label FROM t ORDER BY id LIMIT 3")
	names := []string{"id", "label"}

	part1 := &BatchResult{
		ColumnNames: names,
		Columns: []codec.Section{
			codec.I64Section([]int64{1, 4, 6}),
			codec.StrSection([]string{"a", "d", "f"}),
		},
	}
	part2 := &BatchResult{
		ColumnNames: names,
		Columns: []codec.Section{
			codec.I64Section([]int64{2, 3, 5}),
			codec.StrSection([]string{"b", "c", "e"}),
		},
	}

	combined, err := CombineResults(q, []*BatchResult{part1, part2})
	require.NoError(t, err)

	id := toWireColumn(combined.Columns[indexOf(combined.ColumnNames, "id")])
	label := toWireColumn(combined.Columns[indexOf(combined.ColumnNames, "label")])

	assert.Equal(t, []int64{1, 2, 3}, id.Ints)
	assert.Equal(t, []string{"a", "b", "c"}, label.Strings)
}

// TestCombineSelectFallsBackWhenOrderColumnIsFloat covers
// tournamentMergeSelect's bail-out for a non-integer ranking column: the
// concat+sortPermutation fallback must still produce a correctly globally
// sorted result across partitions.
func TestCombineSelectFallsBackWhenOrderColumnIsFloat(t *testing.T) {
	q := mustParse(t, "SELECT score FROM t ORDER BY score")
	names := []string{"score"}

	part1 := &BatchResult{ColumnNames: names, Columns: []codec.Section{codec.F64Section([]float64{3.5, 1.5})}}
	part2 := &BatchResult{ColumnNames: names, Columns: []codec.Section{codec.F64Section([]float64{2.5})}}

	combined, err := CombineResults(q, []*BatchResult{part1, part2})
	require.NoError(t, err)

	score := toWireColumn(combined.Columns[0])
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, score.Floats)
}

// TestCombineAggregateMergesSameGroupAcrossPartitions covers
// combineAggregateResults' HashMapGroupingValRows-based regrouping: the same
// GROUP BY key (k=1) split across two partitions' partial results must
// combine into one row with additive SUM and extremum MAX, not two separate
// rows.
func TestCombineAggregateMergesSameGroupAcrossPartitions(t *testing.T) {
	q := mustParse(t, "SELECT k, SUM(v), MAX(v) FROM t GROUP BY k")
	names := []string{"k", "SUM(v)", "MAX(v)"}

	part1 := &BatchResult{
		Aggregate:   true,
		ColumnNames: names,
		Columns: []codec.Section{
			codec.I64Section([]int64{1, 2}),
			codec.I64Section([]int64{10, 100}),
			codec.I64Section([]int64{10, 100}),
		},
	}
	part2 := &BatchResult{
		Aggregate:   true,
		ColumnNames: names,
		Columns: []codec.Section{
			codec.I64Section([]int64{1}),
			codec.I64Section([]int64{20}),
			codec.I64Section([]int64{20}),
		},
	}

	combined, err := CombineResults(q, []*BatchResult{part1, part2})
	require.NoError(t, err)

	k := toWireColumn(combined.Columns[0])
	sum := toWireColumn(combined.Columns[1])
	max := toWireColumn(combined.Columns[2])

	gotSum := map[int64]int64{}
	gotMax := map[int64]int64{}
	for i, key := range k.Ints {
		gotSum[key] = sum.Ints[i]
		gotMax[key] = max.Ints[i]
	}
	assert.Equal(t, map[int64]int64{1: 30, 2: 100}, gotSum)
	assert.Equal(t, map[int64]int64{1: 20, 2: 100}, gotMax)
}

func nullableF64(t *testing.T, values []float64, present []bool) codec.Section {
	t.Helper()
	sec := codec.F64Section(values)
	sec.Type = sec.Type.Nullable()
	words := make([]uint64, codec.BitmapWord(len(present)))
	for i, p := range present {
		if p {
			codec.BitmapSet(words, i)
		}
	}
	sec.NullBitmap = words
	return sec
}
