// Package engine turns FHE usage statistics into gas estimates and
// optimization suggestions.
package engine

import (
	"fmt"
	"math/bits"

	"github.com/fhelabs/fhegas/internal/costs"
	"github.com/fhelabs/fhegas/internal/events"
	"github.com/fhelabs/fhegas/internal/fhe"
	"github.com/fhelabs/fhegas/internal/model"
)

// Suggestion thresholds: an operation is flagged when it is both expensive
// and frequently called within a single batch. Both bounds are exclusive.
const (
	suggestionBaseCost = 10000
	suggestionCount    = 5
)

// Engine estimates gas for encrypted operations against a cost registry.
// Each Engine owns its registry and analysis store; callers wanting an
// isolated cost model construct a fresh instance.
type Engine struct {
	registry *costs.Registry
	store    *AnalysisStore
	emitter  events.Emitter
}

// New creates an engine around registry. A nil emitter disables
// notifications; a nil registry gets the embedded defaults.
func New(registry *costs.Registry, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if registry == nil {
		registry = costs.NewRegistry(emitter)
	}
	return &Engine{
		registry: registry,
		store:    NewAnalysisStore(emitter),
		emitter:  emitter,
	}
}

// Registry returns the engine's cost registry.
func (e *Engine) Registry() *costs.Registry { return e.registry }

// Store returns the engine's analysis store.
func (e *Engine) Store() *AnalysisStore { return e.store }

// EstimateOperation returns baseCost + perByteCost*dataSize for a single
// invocation of the named operation.
func (e *Engine) EstimateOperation(name string, dataSize int64) (fhe.Gas, error) {
	if dataSize < 0 {
		return 0, fmt.Errorf("%w: negative data size %d", fhe.ErrInvalidParameter, dataSize)
	}
	cost, err := e.registry.GetCost(name)
	if err != nil {
		return 0, err
	}
	return operationGas(cost, uint64(dataSize))
}

// Analyze aggregates one usage report into a ContractAnalysis. Aggregation
// is all-or-nothing: any unknown operation, invalid count or overflow fails
// the whole batch with no partial result. The caller is responsible for
// persisting the returned analysis (see AnalyzeAndRecord).
func (e *Engine) Analyze(report model.UsageReport) (model.ContractAnalysis, error) {
	var zero model.ContractAnalysis

	if len(report.Operations) != len(report.Counts) {
		return zero, fmt.Errorf("%w: %d operations, %d counts",
			fhe.ErrMismatchedInputLength, len(report.Operations), len(report.Counts))
	}
	if report.AvgDataSize < 0 {
		return zero, fmt.Errorf("%w: negative avg data size %d",
			fhe.ErrInvalidParameter, report.AvgDataSize)
	}

	var totalGas, totalOps uint64
	var suggestions []string

	for i, name := range report.Operations {
		count := report.Counts[i]
		if count < 0 {
			return zero, fmt.Errorf("%w: negative count %d for %q",
				fhe.ErrInvalidParameter, count, name)
		}

		cost, err := e.registry.GetCost(name)
		if err != nil {
			return zero, err
		}

		opGas, err := operationGas(cost, uint64(report.AvgDataSize))
		if err != nil {
			return zero, err
		}

		hi, batchGas := bits.Mul64(opGas, uint64(count))
		if hi != 0 {
			return zero, fmt.Errorf("%w: gas for %d calls of %q",
				fhe.ErrArithmeticOverflow, count, name)
		}

		var carry uint64
		totalGas, carry = bits.Add64(totalGas, batchGas, 0)
		if carry != 0 {
			return zero, fmt.Errorf("%w: accumulating gas total", fhe.ErrArithmeticOverflow)
		}
		totalOps, carry = bits.Add64(totalOps, uint64(count), 0)
		if carry != 0 {
			return zero, fmt.Errorf("%w: accumulating operation total", fhe.ErrArithmeticOverflow)
		}

		if cost.BaseCost > suggestionBaseCost && count > suggestionCount {
			s := Suggestion(name, cost.BaseCost, count)
			suggestions = append(suggestions, s)
			e.emitter.SuggestionEmitted(report.SubjectID, s)
		}
	}

	return model.ContractAnalysis{
		SubjectName:             report.SubjectName,
		TotalFheOps:             totalOps,
		EstimatedGas:            totalGas,
		OptimizationSuggestions: suggestions,
	}, nil
}

// AnalyzeAndRecord runs Analyze and, only on success, records the result in
// the analysis store under the report's subject ID.
func (e *Engine) AnalyzeAndRecord(report model.UsageReport) (model.ContractAnalysis, error) {
	analysis, err := e.Analyze(report)
	if err != nil {
		return model.ContractAnalysis{}, err
	}
	e.store.Record(report.SubjectID, analysis)
	return analysis, nil
}

// Suggestion formats the advisory emitted for an expensive, frequently
// called operation. The format is stable: stored analyses and rendered
// reports must agree on it.
func Suggestion(name string, baseCost uint64, count int64) string {
	return fmt.Sprintf("Operation %q has a high base cost (%d gas) and is called %d times; consider batching operands or caching the encrypted result",
		name, baseCost, count)
}

// operationGas computes baseCost + perByteCost*dataSize with overflow
// detection. Multiplication happens before summation.
func operationGas(cost model.OperationCost, dataSize uint64) (uint64, error) {
	hi, sized := bits.Mul64(cost.PerByteCost, dataSize)
	if hi != 0 {
		return 0, fmt.Errorf("%w: per-byte gas for %q at size %d",
			fhe.ErrArithmeticOverflow, cost.Name, dataSize)
	}
	gas, carry := bits.Add64(cost.BaseCost, sized, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: gas for %q", fhe.ErrArithmeticOverflow, cost.Name)
	}
	return gas, nil
}
