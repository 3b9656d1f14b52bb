package chronoset_test

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"chronoset"
	"chronoset/core"
)

// These scenarios reproduce the engine's literal end-to-end examples: a
// fixed system date of 2025-01-27, id column (id), value column (v), and
// the INF sentinel on both axes.

type scenarioRow struct {
	id     int64
	v      int64
	ef, et int32 // days since epoch
	af, at int64 // unix seconds
}

var (
	timestampSecond = &arrow.TimestampType{Unit: arrow.Second}
	scenarioSchema  = arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "v", Type: arrow.PrimitiveTypes.Int64},
		{Name: core.ColEffectiveFrom, Type: arrow.FixedWidthTypes.Date32},
		{Name: core.ColEffectiveTo, Type: arrow.FixedWidthTypes.Date32},
		{Name: core.ColAsOfFrom, Type: timestampSecond},
		{Name: core.ColAsOfTo, Type: timestampSecond},
	}, nil)
)

func day(y, m, d int) int32 {
	return int32(time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

func sec(y, m, d int) int64 {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC).Unix()
}

var (
	infDate    = int32(core.SentinelDate)
	infSeconds = core.SentinelDate * 86400
	systemDate = time.Date(2025, 1, 27, 0, 0, 0, 0, time.UTC)
)

func buildScenarioRecord(t *testing.T, mem memory.Allocator, rows []scenarioRow) arrow.Record {
	t.Helper()
	b := array.NewRecordBuilder(mem, scenarioSchema)
	defer b.Release()
	for _, r := range rows {
		b.Field(0).(*array.Int64Builder).Append(r.id)
		b.Field(1).(*array.Int64Builder).Append(r.v)
		b.Field(2).(*array.Date32Builder).Append(arrow.Date32(r.ef))
		b.Field(3).(*array.Date32Builder).Append(arrow.Date32(r.et))
		b.Field(4).(*array.TimestampBuilder).Append(arrow.Timestamp(r.af))
		b.Field(5).(*array.TimestampBuilder).Append(arrow.Timestamp(r.at))
	}
	return b.NewRecord()
}

func scenarioOptions(mode core.UpdateMode, conflate bool) chronoset.Options {
	opts := chronoset.DefaultOptions()
	opts.IDColumns = []string{"id"}
	opts.ValueColumns = []string{"v"}
	opts.Mode = mode
	opts.ConflateInputs = conflate
	opts.Clock = func() time.Time { return systemDate }
	return opts
}

func insertByEffectiveFrom(t *testing.T, cs chronoset.ChangeSet) map[int64]map[string]int64 {
	t.Helper()
	out := make(map[int64]map[string]int64)
	for _, rec := range cs.ToInsert {
		defer rec.Release()
		vCol := rec.Column(1).(*array.Int64)
		efCol := rec.Column(2).(*array.Date32)
		for i := 0; i < int(rec.NumRows()); i++ {
			out[int64(efCol.Value(i))] = map[string]int64{"v": vCol.Value(i)}
		}
	}
	return out
}

func TestScenario_S1_HeadSliceDelta(t *testing.T) {
	mem := memory.NewGoAllocator()
	current := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 100, ef: day(2025, 1, 1), et: infDate, af: sec(2025, 1, 1), at: infSeconds},
	})
	defer current.Release()
	updates := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 200, ef: day(2025, 1, 1), et: day(2025, 6, 1), af: sec(2025, 1, 27), at: infSeconds},
	})
	defer updates.Release()

	cs, err := chronoset.Compute(context.Background(), current, updates, scenarioOptions(core.Delta, false))
	require.NoError(t, err)
	require.Equal(t, []int{0}, cs.ToExpire)

	byEF := insertByEffectiveFrom(t, cs)
	require.Len(t, byEF, 2)
	require.Equal(t, int64(200), byEF[int64(day(2025, 1, 1))]["v"])
	require.Equal(t, int64(100), byEF[int64(day(2025, 6, 1))]["v"])
}

func TestScenario_S2_InteriorSliceDelta(t *testing.T) {
	mem := memory.NewGoAllocator()
	current := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 100, ef: day(2025, 1, 1), et: infDate, af: sec(2025, 1, 1), at: infSeconds},
	})
	defer current.Release()
	updates := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 200, ef: day(2025, 4, 1), et: day(2025, 7, 1), af: sec(2025, 1, 27), at: infSeconds},
	})
	defer updates.Release()

	cs, err := chronoset.Compute(context.Background(), current, updates, scenarioOptions(core.Delta, false))
	require.NoError(t, err)
	require.Equal(t, []int{0}, cs.ToExpire)

	byEF := insertByEffectiveFrom(t, cs)
	require.Len(t, byEF, 3)
	require.Equal(t, int64(100), byEF[int64(day(2025, 1, 1))]["v"])
	require.Equal(t, int64(200), byEF[int64(day(2025, 4, 1))]["v"])
	require.Equal(t, int64(100), byEF[int64(day(2025, 7, 1))]["v"])
}

func TestScenario_S3_FullStateNoOp(t *testing.T) {
	mem := memory.NewGoAllocator()
	current := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 100, ef: day(2025, 1, 1), et: infDate, af: sec(2025, 1, 1), at: infSeconds},
	})
	defer current.Release()
	updates := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 100, ef: day(2025, 1, 1), et: infDate, af: sec(2025, 1, 1), at: infSeconds},
	})
	defer updates.Release()

	cs, err := chronoset.Compute(context.Background(), current, updates, scenarioOptions(core.FullState, false))
	require.NoError(t, err)
	require.Empty(t, cs.ToExpire)
	require.Empty(t, cs.ToInsert)
}

func TestScenario_S4_FullStateTombstone(t *testing.T) {
	mem := memory.NewGoAllocator()
	current := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 100, ef: day(2025, 1, 1), et: infDate, af: sec(2025, 1, 1), at: infSeconds},
		{id: 2, v: 200, ef: day(2025, 1, 1), et: infDate, af: sec(2025, 1, 1), at: infSeconds},
	})
	defer current.Release()
	updates := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 100, ef: day(2025, 1, 1), et: infDate, af: sec(2025, 1, 1), at: infSeconds},
	})
	defer updates.Release()

	cs, err := chronoset.Compute(context.Background(), current, updates, scenarioOptions(core.FullState, false))
	require.NoError(t, err)
	require.Equal(t, []int{1}, cs.ToExpire, "only id=2's current row is tombstoned")

	require.Len(t, cs.ToInsert, 1)
	rec := cs.ToInsert[0]
	defer rec.Release()
	require.EqualValues(t, 1, rec.NumRows())
	require.Equal(t, int64(2), rec.Column(0).(*array.Int64).Value(0))
	require.Equal(t, int64(200), rec.Column(1).(*array.Int64).Value(0))
	require.Equal(t, arrow.Date32(day(2025, 1, 27)), rec.Column(3).(*array.Date32).Value(0))
}

func TestScenario_S5_DisjointUpdateLeavesCurrentUntouched(t *testing.T) {
	mem := memory.NewGoAllocator()
	current := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 100, ef: day(2025, 1, 1), et: day(2025, 6, 1), af: sec(2025, 1, 1), at: infSeconds},
	})
	defer current.Release()
	updates := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 200, ef: day(2026, 1, 1), et: day(2026, 6, 1), af: sec(2025, 1, 27), at: infSeconds},
	})
	defer updates.Release()

	cs, err := chronoset.Compute(context.Background(), current, updates, scenarioOptions(core.Delta, false))
	require.NoError(t, err)
	require.Empty(t, cs.ToExpire)
	require.Len(t, cs.ToInsert, 1)
	require.EqualValues(t, 1, cs.ToInsert[0].NumRows())
	cs.ToInsert[0].Release()
}

func TestScenario_S6_InputConflationMergesAdjacentUpdates(t *testing.T) {
	mem := memory.NewGoAllocator()
	current := buildScenarioRecord(t, mem, nil)
	defer current.Release()
	updates := buildScenarioRecord(t, mem, []scenarioRow{
		{id: 1, v: 100, ef: day(2025, 1, 1), et: day(2025, 6, 1), af: sec(2025, 1, 27), at: infSeconds},
		{id: 1, v: 100, ef: day(2025, 6, 1), et: day(2025, 12, 1), af: sec(2025, 1, 27), at: infSeconds},
	})
	defer updates.Release()

	cs, err := chronoset.Compute(context.Background(), current, updates, scenarioOptions(core.Delta, true))
	require.NoError(t, err)
	require.Empty(t, cs.ToExpire)
	require.Len(t, cs.ToInsert, 1)
	defer cs.ToInsert[0].Release()
	require.EqualValues(t, 1, cs.ToInsert[0].NumRows(), "the two adjacent equal-valued updates merge into one insert")
	require.Equal(t, arrow.Date32(day(2025, 1, 1)), cs.ToInsert[0].Column(2).(*array.Date32).Value(0))
	require.Equal(t, arrow.Date32(day(2025, 12, 1)), cs.ToInsert[0].Column(3).(*array.Date32).Value(0))
}
