package model

// OperationCost holds the gas parameters for a single FHE primitive.
// A BaseCost of zero marks the operation as unregistered; the registry
// never treats it as a legitimately free operation.
type OperationCost struct {
	Name        string `json:"name" yaml:"name"`
	BaseCost    uint64 `json:"base_cost" yaml:"base_cost"`
	PerByteCost uint64 `json:"per_byte_cost" yaml:"per_byte_cost"`
}

// UsageReport is one analyzer-supplied batch describing how a subject
// (typically a contract) uses FHE primitives. Operations and Counts are
// positionally paired: Operations[i] occurred Counts[i] times. AvgDataSize
// applies uniformly to every operation in the batch.
//
// Counts and AvgDataSize stay signed so that negative values arriving over
// the wire can be rejected instead of silently reinterpreted.
type UsageReport struct {
	SubjectID   string   `json:"subject_id"`
	SubjectName string   `json:"subject_name"`
	Operations  []string `json:"operations"`
	Counts      []int64  `json:"counts"`
	AvgDataSize int64    `json:"avg_data_size"`
}

// ContractAnalysis is the result of aggregating one UsageReport. It is
// immutable once returned; re-analyzing a subject produces a fresh value.
type ContractAnalysis struct {
	SubjectName             string   `json:"subject_name"`
	TotalFheOps             uint64   `json:"total_fhe_ops"`
	EstimatedGas            uint64   `json:"estimated_gas"`
	OptimizationSuggestions []string `json:"optimization_suggestions,omitempty"`
}
