// Package events defines the typed event protocol between the research
// engine and its clients: a single ordered stream of JSON events per
// session, with stable-id reconciliation semantics.
package events

import (
	"fmt"
	"time"
)

// Type names one event on the wire.
type Type string

// Session lifecycle. Terminal types close the stream.
const (
	TypeSessionComplete Type = "session-complete"
	TypeSessionError    Type = "session-error"
	TypeAgentPaused     Type = "agent-paused"
)

// Unified agent events.
const (
	TypeAgentEventStart    Type = "agent_event_start"
	TypeAgentEventUpdate   Type = "agent_event_update"
	TypeAgentEventComplete Type = "agent_event_complete"
)

// Legacy step events, kept while clients migrate to unified events.
const (
	TypeAgentStepStart    Type = "agent_step_start"
	TypeAgentStepUpdate   Type = "agent_step_update"
	TypeAgentStepComplete Type = "agent_step_complete"
	TypeAgentStepLog      Type = "agent_step_log"
)

// Cards. Same id means update in place.
const (
	TypeDataPlan      Type = "data-plan"
	TypeDataPaperList Type = "data-paper-list"
	TypeDataQuality   Type = "data-quality"
	TypeDataDocument  Type = "data-document"
)

// Checkpoints and incremental content.
const (
	TypeDataCheckpoint   Type = "data-checkpoint"
	TypeDataTodo         Type = "data-todo"
	TypeDataLogLine      Type = "data-log-line"
	TypeDataSummary      Type = "data-summary"
	TypeDataNotification Type = "data-notification"
)

// Research primitives.
const (
	TypeStatus       Type = "status"
	TypePlan         Type = "plan"
	TypeSearchStart  Type = "search_start"
	TypePapersFound  Type = "papers_found"
	TypeAnalysis     Type = "analysis"
	TypeWritingStart Type = "writing_start"
	TypeContent      Type = "content"
	TypeCitation     Type = "citation"
	TypeComplete     Type = "complete"
	TypeError        Type = "error"
	TypeQualityGate  Type = "quality_gate_result"
	TypeValidation   Type = "validation"
)

// Terminal reports whether this type ends the stream. The research
// primitives `complete` and `error` precede their session lifecycle
// counterpart; only the lifecycle event closes the stream.
func (t Type) Terminal() bool {
	return t == TypeSessionComplete || t == TypeSessionError
}

// Event is the wire envelope.
type Event struct {
	Type      Type           `json:"type"`
	ID        string         `json:"id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AgentStatus is the lifecycle state carried by unified agent events.
type AgentStatus string

const (
	AgentRunning  AgentStatus = "running"
	AgentComplete AgentStatus = "complete"
	AgentFailed   AgentStatus = "failed"
)

// AgentEvent is the payload of the unified agent_event_* family.
type AgentEvent struct {
	ID              string         `json:"id"`
	Stage           string         `json:"stage"`
	StepType        string         `json:"stepType"`
	TitleEn         string         `json:"titleEn"`
	TitleZh         string         `json:"titleZh,omitempty"`
	Status          AgentStatus    `json:"status"`
	Iteration       int            `json:"iteration,omitempty"`
	TotalIterations int            `json:"totalIterations,omitempty"`
	StartTime       time.Time      `json:"startTime"`
	Meta            map[string]any `json:"meta,omitempty"`
}

// AgentEventID builds the stable id for a unified event:
// {stage}-{stepType} with the iteration appended when non-zero.
func AgentEventID(stage, stepType string, iteration int) string {
	if iteration > 0 {
		return fmt.Sprintf("%s-%s-%d", stage, stepType, iteration)
	}
	return stage + "-" + stepType
}

// Checkpoint is the payload of a data-checkpoint event. Unresolved
// checkpoints gate the workflow until the client responds.
type Checkpoint struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	CardID         string    `json:"cardId,omitempty"`
	Options        []string  `json:"options"`
	RequiredAction string    `json:"requiredAction"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Checkpoint actions a client may respond with, plus free-form custom
// actions the checkpoint's options enumerate.
const (
	ActionApprove = "approve"
	ActionIterate = "iterate"
	ActionEdit    = "edit"
)

// Reconcile merges a later event into an earlier one with the same id:
// shallow overlay of data, with "meta" merged as a nested shallow
// overlay. Returns the merged event. Reconciling identical payloads is
// a no-op.
func Reconcile(base, update Event) Event {
	merged := base
	merged.Type = update.Type
	merged.Timestamp = update.Timestamp
	if len(update.Data) == 0 {
		return merged
	}
	data := make(map[string]any, len(base.Data)+len(update.Data))
	for k, v := range base.Data {
		data[k] = v
	}
	for k, v := range update.Data {
		if k == "meta" {
			data[k] = mergeMeta(base.Data["meta"], v)
			continue
		}
		data[k] = v
	}
	merged.Data = data
	return merged
}

func mergeMeta(base, update any) any {
	baseMap, ok1 := base.(map[string]any)
	updateMap, ok2 := update.(map[string]any)
	if !ok1 || !ok2 {
		return update
	}
	out := make(map[string]any, len(baseMap)+len(updateMap))
	for k, v := range baseMap {
		out[k] = v
	}
	for k, v := range updateMap {
		out[k] = v
	}
	return out
}
