package fvg

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeEmpty(t *testing.T) {
	for _, gaps := range [][]Gap{nil, {}} {
		ins := Analyze(gaps)
		assert.Equal(t, 0, ins.Total)
		assert.Nil(t, ins.Breakdown)

		b, err := json.Marshal(ins)
		require.NoError(t, err)
		assert.JSONEq(t, `{"total_fvgs":0}`, string(b))
	}
}

func TestAnalyzeMixed(t *testing.T) {
	gaps, err := Scan(mixedBars())
	require.NoError(t, err)

	ins := Analyze(gaps)
	require.NotNil(t, ins.Breakdown)

	assert.Equal(t, 4, ins.Total)
	assert.Equal(t, 2, ins.Bullish)
	assert.Equal(t, 2, ins.Bearish)
	assert.Equal(t, 2, ins.Filled)
	assert.Equal(t, 2, ins.Unfilled)
	assert.Equal(t, 1, ins.BullishFilled)
	assert.Equal(t, 1, ins.BearishFilled)
	assert.InDelta(t, 0.5, ins.FillRate, 1e-12)
	assert.InDelta(t, 0.5, ins.BullishFillRate, 1e-12)
	assert.InDelta(t, 0.5, ins.BearishFillRate, 1e-12)

	assert.InDelta(t, 1.5, ins.AvgGapSize, 1e-12)
	assert.InDelta(t, 0.5, ins.MinGapSize, 1e-12)
	assert.InDelta(t, 2.5, ins.MaxGapSize, 1e-12)
	require.NotNil(t, ins.AvgBullishGap)
	require.NotNil(t, ins.AvgBearishGap)
	assert.InDelta(t, 0.75, *ins.AvgBullishGap, 1e-12)
	assert.InDelta(t, 2.25, *ins.AvgBearishGap, 1e-12)

	require.NotNil(t, ins.AvgTimeToFill)
	assert.InDelta(t, 120, *ins.AvgTimeToFill, 1e-9)
	assert.InDelta(t, 120, *ins.MinTimeToFill, 1e-9)
	assert.InDelta(t, 120, *ins.MaxTimeToFill, 1e-9)

	assert.Equal(t, LargestGap{Timestamp: at(5), Type: Bearish, GapSize: 2.5, GapLow: 10.5, GapHigh: 13}, ins.Largest)
	assert.Equal(t, at(2), ins.FirstGap)
	assert.Equal(t, at(8), ins.LastGap)
}

func TestAnalyzeMissingSamples(t *testing.T) {
	gaps := []Gap{
		{Timestamp: at(2), Type: Bullish, GapLow: 1, GapHigh: 2},
		{Timestamp: at(3), Type: Bullish, GapLow: 1, GapHigh: 4},
	}

	ins := Analyze(gaps)
	assert.Equal(t, 0, ins.Bearish)
	assert.Equal(t, 0.0, ins.BearishFillRate)
	assert.Equal(t, 0.0, ins.FillRate)
	assert.Nil(t, ins.AvgBearishGap)
	assert.Nil(t, ins.AvgTimeToFill)
	assert.Nil(t, ins.MinTimeToFill)
	assert.Nil(t, ins.MaxTimeToFill)

	b, err := json.Marshal(ins)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `"avg_bearish_gap":null`)
	assert.Contains(t, out, `"avg_time_to_fill_min":null`)
	assert.Contains(t, out, `"largest_fvg":{"Timestamp":"2023-01-01T03:00:00Z","Type":"Bullish","Gap_Size":3,"Gap_Low":1,"Gap_High":4}`)
	assert.False(t, strings.Contains(out, "NaN"))
}

func TestAnalyzeLargestTieGoesToFirst(t *testing.T) {
	gaps := []Gap{
		{Timestamp: at(2), Type: Bullish, GapLow: 1, GapHigh: 2},
		{Timestamp: at(3), Type: Bearish, GapLow: 5, GapHigh: 7},
		{Timestamp: at(4), Type: Bullish, GapLow: 3, GapHigh: 5},
	}

	ins := Analyze(gaps)
	assert.Equal(t, at(3), ins.Largest.Timestamp)
	assert.Equal(t, Bearish, ins.Largest.Type)
}

func TestAnalyzePartitions(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		gaps, err := Scan(randomWalk(seed, 300))
		require.NoError(t, err)

		ins := Analyze(gaps)
		assert.Equal(t, Analyze(gaps), ins, "analyze is deterministic")
		if ins.Total == 0 {
			continue
		}
		assert.Equal(t, ins.Total, ins.Filled+ins.Unfilled)
		assert.Equal(t, ins.Total, ins.Bullish+ins.Bearish)
		assert.Equal(t, ins.Filled, ins.BullishFilled+ins.BearishFilled)
		assert.LessOrEqual(t, ins.MinGapSize, ins.AvgGapSize)
		assert.LessOrEqual(t, ins.AvgGapSize, ins.MaxGapSize)
		assert.Equal(t, ins.MaxGapSize, ins.Largest.GapSize)

		for _, v := range []float64{ins.FillRate, ins.BullishFillRate, ins.BearishFillRate, ins.AvgGapSize} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
}

func TestInsightsJSONRoundTrip(t *testing.T) {
	gaps, err := Scan(mixedBars())
	require.NoError(t, err)
	ins := Analyze(gaps)

	b, err := json.Marshal(ins)
	require.NoError(t, err)

	var back Insights
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, ins, back)
}
