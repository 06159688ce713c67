package engine

import (
	"sync"

	"github.com/fhelabs/fhegas/internal/events"
	"github.com/fhelabs/fhegas/internal/model"
)

// AnalysisStore keeps the latest analysis per subject plus an append-only
// log of every subject ever analyzed. Re-analyzing a subject overwrites the
// keyed entry but still appends to the log, so the log may contain
// duplicates; ListSubjects preserves them deliberately.
type AnalysisStore struct {
	mu       sync.Mutex
	analyses map[string]model.ContractAnalysis
	subjects []string
	count    uint64
	emitter  events.Emitter
}

// NewAnalysisStore returns an empty store. A nil emitter disables
// notifications.
func NewAnalysisStore(emitter events.Emitter) *AnalysisStore {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &AnalysisStore{
		analyses: make(map[string]model.ContractAnalysis),
		emitter:  emitter,
	}
}

// Record stores analysis as the current value for subjectID, overwriting
// any prior analysis, appends subjectID to the log and increments the
// analysis counter. The write is atomic with respect to concurrent callers.
func (s *AnalysisStore) Record(subjectID string, analysis model.ContractAnalysis) {
	s.mu.Lock()
	s.analyses[subjectID] = analysis
	s.subjects = append(s.subjects, subjectID)
	s.count++
	s.mu.Unlock()

	s.emitter.SubjectAnalyzed(subjectID, analysis.EstimatedGas)
}

// Get returns the stored analysis for subjectID, or a zero-value analysis
// if the subject was never analyzed. Absence is not an error.
func (s *AnalysisStore) Get(subjectID string) model.ContractAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyses[subjectID]
}

// ListSubjects returns the full append log in recording order, duplicates
// included.
func (s *AnalysisStore) ListSubjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.subjects))
	copy(out, s.subjects)
	return out
}

// AnalysisCount returns how many analyses have been recorded, counting
// re-analyses of the same subject.
func (s *AnalysisStore) AnalysisCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
