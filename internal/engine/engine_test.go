package engine

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhelabs/fhegas/internal/costs"
	"github.com/fhelabs/fhegas/internal/fhe"
	"github.com/fhelabs/fhegas/internal/model"
)

// captureEmitter records every notification for assertions.
type captureEmitter struct {
	mu          sync.Mutex
	costUpdates []string
	analyzed    []string
	suggestions []string
}

func (c *captureEmitter) CostUpdated(name string, base, perByte uint64) {
	c.mu.Lock()
	c.costUpdates = append(c.costUpdates, name)
	c.mu.Unlock()
}

func (c *captureEmitter) SubjectAnalyzed(subjectID string, gas uint64) {
	c.mu.Lock()
	c.analyzed = append(c.analyzed, subjectID)
	c.mu.Unlock()
}

func (c *captureEmitter) SuggestionEmitted(subjectID, suggestion string) {
	c.mu.Lock()
	c.suggestions = append(c.suggestions, suggestion)
	c.mu.Unlock()
}

func TestEstimateOperationFormula(t *testing.T) {
	e := New(nil, nil)

	for _, cost := range costs.DefaultCosts() {
		for _, size := range []int64{0, 1, 1 << 20} {
			gas, err := e.EstimateOperation(cost.Name, size)
			require.NoError(t, err)
			assert.Equal(t, cost.BaseCost+cost.PerByteCost*uint64(size), gas,
				"%s at size %d", cost.Name, size)
		}
	}
}

func TestEstimateOperationUnknown(t *testing.T) {
	e := New(nil, nil)

	for _, size := range []int64{0, 1, 4096} {
		_, err := e.EstimateOperation("bootstrap", size)
		assert.ErrorIs(t, err, fhe.ErrUnknownOperation)
	}
}

func TestEstimateOperationNegativeSize(t *testing.T) {
	e := New(nil, nil)

	_, err := e.EstimateOperation("add", -1)
	assert.ErrorIs(t, err, fhe.ErrInvalidParameter)
}

func TestEstimateAfterZeroSentinelOverwrite(t *testing.T) {
	e := New(nil, nil)

	require.NoError(t, e.Registry().SetCost("mul", 0, 0))
	_, err := e.EstimateOperation("mul", 32)
	assert.ErrorIs(t, err, fhe.ErrUnknownOperation)
}

func TestAnalyzeExampleScenario(t *testing.T) {
	emitter := &captureEmitter{}
	e := New(nil, emitter)

	report := model.UsageReport{
		SubjectID:   "0xabc",
		SubjectName: "PrivateToken",
		Operations:  []string{"mul", "add"},
		Counts:      []int64{6, 2},
		AvgDataSize: 32,
	}

	analysis, err := e.AnalyzeAndRecord(report)
	require.NoError(t, err)

	// (15000+20*32)*6 + (5000+10*32)*2 = 93840 + 10640
	assert.Equal(t, uint64(104480), analysis.EstimatedGas)
	assert.Equal(t, uint64(8), analysis.TotalFheOps)
	assert.Equal(t, "PrivateToken", analysis.SubjectName)

	require.Len(t, analysis.OptimizationSuggestions, 1)
	assert.Equal(t, Suggestion("mul", 15000, 6), analysis.OptimizationSuggestions[0])
	assert.Equal(t, analysis.OptimizationSuggestions, emitter.suggestions)
	assert.Equal(t, []string{"0xabc"}, emitter.analyzed)
}

func TestSetCostEmitsNotification(t *testing.T) {
	emitter := &captureEmitter{}
	e := New(nil, emitter)

	require.NoError(t, e.Registry().SetCost("bootstrap", 50000, 100))
	require.NoError(t, e.Registry().SetCost("mul", 18000, 24))
	assert.Equal(t, []string{"bootstrap", "mul"}, emitter.costUpdates)

	// Rejected updates emit nothing.
	require.Error(t, e.Registry().SetCost("add", -1, 0))
	assert.Equal(t, []string{"bootstrap", "mul"}, emitter.costUpdates)
}

func TestAnalyzeSuggestionBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		baseCost int64
		count    int64
		want     bool
	}{
		{"base at threshold", 10000, 6, false},
		{"count at threshold", 10001, 5, false},
		{"both just above", 10001, 6, true},
		{"expensive but rare", 50000, 1, false},
		{"cheap but frequent", 100, 1000, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := New(nil, nil)
			require.NoError(t, e.Registry().SetCost("op", tc.baseCost, 0))

			analysis, err := e.Analyze(model.UsageReport{
				SubjectID:  "s",
				Operations: []string{"op"},
				Counts:     []int64{tc.count},
			})
			require.NoError(t, err)

			if tc.want {
				assert.Len(t, analysis.OptimizationSuggestions, 1)
			} else {
				assert.Empty(t, analysis.OptimizationSuggestions)
			}
		})
	}
}

func TestAnalyzeSuggestionsKeepInputOrder(t *testing.T) {
	e := New(nil, nil)

	analysis, err := e.Analyze(model.UsageReport{
		SubjectID:   "s",
		Operations:  []string{"div", "add", "mul"},
		Counts:      []int64{7, 100, 9},
		AvgDataSize: 16,
	})
	require.NoError(t, err)

	require.Len(t, analysis.OptimizationSuggestions, 2)
	assert.Equal(t, Suggestion("div", 20000, 7), analysis.OptimizationSuggestions[0])
	assert.Equal(t, Suggestion("mul", 15000, 9), analysis.OptimizationSuggestions[1])
}

func TestAnalyzeMismatchedLengths(t *testing.T) {
	e := New(nil, nil)

	_, err := e.AnalyzeAndRecord(model.UsageReport{
		SubjectID:  "s",
		Operations: []string{"add", "mul"},
		Counts:     []int64{1},
	})
	assert.ErrorIs(t, err, fhe.ErrMismatchedInputLength)

	// The failed batch must not touch the store.
	assert.Empty(t, e.Store().ListSubjects())
	assert.Equal(t, uint64(0), e.Store().AnalysisCount())
}

func TestAnalyzeUnknownOperationAbortsBatch(t *testing.T) {
	e := New(nil, nil)

	_, err := e.AnalyzeAndRecord(model.UsageReport{
		SubjectID:  "s",
		Operations: []string{"add", "bootstrap"},
		Counts:     []int64{1, 1},
	})
	assert.ErrorIs(t, err, fhe.ErrUnknownOperation)
	assert.Empty(t, e.Store().ListSubjects())
}

func TestAnalyzeRejectsNegativeInputs(t *testing.T) {
	e := New(nil, nil)

	_, err := e.Analyze(model.UsageReport{
		Operations:  []string{"add"},
		Counts:      []int64{1},
		AvgDataSize: -1,
	})
	assert.ErrorIs(t, err, fhe.ErrInvalidParameter)

	_, err = e.Analyze(model.UsageReport{
		Operations: []string{"add"},
		Counts:     []int64{-1},
	})
	assert.ErrorIs(t, err, fhe.ErrInvalidParameter)
}

func TestAnalyzeOverflow(t *testing.T) {
	e := New(nil, nil)
	require.NoError(t, e.Registry().SetCost("huge", math.MaxInt64, 0))

	_, err := e.Analyze(model.UsageReport{
		SubjectID:  "s",
		Operations: []string{"huge", "huge", "huge"},
		Counts:     []int64{math.MaxInt64, math.MaxInt64, math.MaxInt64},
	})
	assert.ErrorIs(t, err, fhe.ErrArithmeticOverflow)
}

func TestStoreOverwriteKeepsDuplicateLog(t *testing.T) {
	e := New(nil, nil)

	first := model.UsageReport{
		SubjectID:   "0xabc",
		SubjectName: "PrivateToken",
		Operations:  []string{"add"},
		Counts:      []int64{2},
		AvgDataSize: 32,
	}
	second := model.UsageReport{
		SubjectID:   "0xabc",
		SubjectName: "PrivateToken",
		Operations:  []string{"mul"},
		Counts:      []int64{6},
		AvgDataSize: 32,
	}

	_, err := e.AnalyzeAndRecord(first)
	require.NoError(t, err)
	want, err := e.AnalyzeAndRecord(second)
	require.NoError(t, err)

	// Keyed lookup reflects only the latest analysis.
	assert.Equal(t, want, e.Store().Get("0xabc"))

	// The append log keeps one entry per analysis, duplicates included.
	assert.Equal(t, []string{"0xabc", "0xabc"}, e.Store().ListSubjects())
	assert.Equal(t, uint64(2), e.Store().AnalysisCount())
}

func TestStoreGetUnknownSubjectIsEmpty(t *testing.T) {
	e := New(nil, nil)

	analysis := e.Store().Get("0xnever")
	assert.Equal(t, model.ContractAnalysis{}, analysis)
}
