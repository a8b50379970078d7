// Package events provides progress event types and publishing infrastructure
// for branch analysis runs.
package events

import (
	"time"
)

// Stage identifies the analysis phase a progress event belongs to.
type Stage string

const (
	// StageInit indicates the analysis is loading project state.
	StageInit Stage = "init"
	// StageDiff indicates diff selection is in progress.
	StageDiff Stage = "diff"
	// StageSync indicates branch file-state synchronization.
	StageSync Stage = "sync"
	// StageAI indicates the AI re-evaluation call.
	StageAI Stage = "ai"
	// StageRag indicates the retrieval-index update.
	StageRag Stage = "rag"
	// StageComplete indicates the analysis finished.
	StageComplete Stage = "complete"
)

// Event is a single progress update emitted during a branch analysis run.
type Event struct {
	RunID   string         `json:"run_id"`
	Stage   Stage          `json:"stage"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
	Time    time.Time      `json:"time"`
}

// Sink receives progress events in emission order. A nil Sink is legal and
// discards everything. Implementations must not block; slow consumers are
// decoupled through the buffered publisher.
type Sink func(Event)

// Emit sends an event through the sink, tolerating a nil sink.
func (s Sink) Emit(stage Stage, message string, fields map[string]any) {
	if s == nil {
		return
	}
	s(Event{
		Stage:   stage,
		Message: message,
		Fields:  fields,
		Time:    time.Now(),
	})
}