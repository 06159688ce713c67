// Package events carries the engine's fire-and-forget notifications.
package events

import "log"

// Emitter receives observability notifications from the registry, the
// engine and the analysis store. Notifications are advisory: emitters must
// not block the caller, and failures are neither reported back nor retried.
type Emitter interface {
	// CostUpdated fires after a cost table entry is replaced.
	CostUpdated(name string, baseCost, perByteCost uint64)

	// SubjectAnalyzed fires after an analysis is recorded for a subject.
	SubjectAnalyzed(subjectID string, estimatedGas uint64)

	// SuggestionEmitted fires once per optimization suggestion generated
	// during aggregation.
	SuggestionEmitted(subjectID, suggestion string)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) CostUpdated(string, uint64, uint64) {}
func (Nop) SubjectAnalyzed(string, uint64)     {}
func (Nop) SuggestionEmitted(string, string)   {}

// Log writes notifications to the standard logger.
type Log struct{}

func (Log) CostUpdated(name string, baseCost, perByteCost uint64) {
	log.Printf("cost updated: %s base=%d perByte=%d", name, baseCost, perByteCost)
}

func (Log) SubjectAnalyzed(subjectID string, estimatedGas uint64) {
	log.Printf("subject analyzed: %s estimatedGas=%d", subjectID, estimatedGas)
}

func (Log) SuggestionEmitted(subjectID, suggestion string) {
	log.Printf("suggestion for %s: %s", subjectID, suggestion)
}

// Multi fans every notification out to each wrapped emitter in order.
type Multi []Emitter

func (m Multi) CostUpdated(name string, baseCost, perByteCost uint64) {
	for _, e := range m {
		e.CostUpdated(name, baseCost, perByteCost)
	}
}

func (m Multi) SubjectAnalyzed(subjectID string, estimatedGas uint64) {
	for _, e := range m {
		e.SubjectAnalyzed(subjectID, estimatedGas)
	}
}

func (m Multi) SuggestionEmitted(subjectID, suggestion string) {
	for _, e := range m {
		e.SuggestionEmitted(subjectID, suggestion)
	}
}
