package model

import (
	"maps"

	"github.com/cloudwego/eino/schema"
)

// ConversationState is the record threaded through every node of a turn and
// checkpointed per thread between turns.
// Concurrency model:
//   - A state is owned exclusively by the in-flight turn of its thread; the
//     conversations manager serializes turns of one thread, so no locks here.
//   - During a turn the graph keeps it as local state. Node bodies read a
//     snapshot and their state handlers merge the result with Apply.
type ConversationState struct {
	Messages []*schema.Message `json:"messages"`

	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	JobTitle     string `json:"job_title"`

	UserQuery        string `json:"user_query"`
	RAGNeeded        bool   `json:"rag_needed"`
	DocumentName     string `json:"document_name"`
	DocumentID       string `json:"document_id"`
	FormattedContext string `json:"formatted_context"`
	RAGQuery         string `json:"rag_query"`
	AgentQuery       string `json:"agent_query"`

	// Turn-local scratch, never checkpointed.
	ToolRounds   map[string]int  `json:"-"`
	ToolErrors   map[string]bool `json:"-"`
	TotalCostUSD float64         `json:"-"`
}

// StateUpdate is the partial result of a node. Messages are appended; every
// non-nil pointer overwrites its field.
type StateUpdate struct {
	Messages []*schema.Message

	EmployeeID   *string
	EmployeeName *string
	JobTitle     *string

	UserQuery        *string
	RAGNeeded        *bool
	DocumentName     *string
	DocumentID       *string
	FormattedContext *string
	RAGQuery         *string
	AgentQuery       *string

	// ToolRound names a loop whose round counter should be incremented.
	ToolRound string
	CostUSD   float64
}

// NewConversationState returns the default state of a thread that has never run.
func NewConversationState() *ConversationState {
	return &ConversationState{Messages: []*schema.Message{}}
}

// Apply merges u into s field by field.
func (s *ConversationState) Apply(u StateUpdate) {
	s.Messages = append(s.Messages, u.Messages...)

	// identity is stable: an empty value never clears what the request set
	setNonEmpty(&s.EmployeeID, u.EmployeeID)
	setNonEmpty(&s.EmployeeName, u.EmployeeName)
	setNonEmpty(&s.JobTitle, u.JobTitle)

	set(&s.UserQuery, u.UserQuery)
	set(&s.DocumentName, u.DocumentName)
	set(&s.DocumentID, u.DocumentID)
	set(&s.FormattedContext, u.FormattedContext)
	set(&s.RAGQuery, u.RAGQuery)
	set(&s.AgentQuery, u.AgentQuery)
	if u.RAGNeeded != nil {
		s.RAGNeeded = *u.RAGNeeded
	}

	if u.ToolRound != "" {
		if s.ToolRounds == nil {
			s.ToolRounds = map[string]int{}
		}
		s.ToolRounds[u.ToolRound]++
	}
	s.TotalCostUSD += u.CostUSD
}

// BeginTurn resets the per-turn fields before the router runs. The caller's
// document name hint replaces whatever the previous turn resolved.
func (s *ConversationState) BeginTurn(query, documentHint string, id Identity) {
	s.Apply(StateUpdate{
		Messages:         []*schema.Message{schema.UserMessage(query)},
		EmployeeID:       &id.EmployeeID,
		EmployeeName:     &id.EmployeeName,
		JobTitle:         &id.JobTitle,
		UserQuery:        &query,
		RAGNeeded:        Ptr(false),
		DocumentName:     &documentHint,
		DocumentID:       Ptr(""),
		FormattedContext: Ptr(""),
		RAGQuery:         Ptr(""),
		AgentQuery:       Ptr(""),
	})
	s.ToolRounds = map[string]int{}
	s.ToolErrors = map[string]bool{}
	s.TotalCostUSD = 0
}

// MarkToolError records that the result of callID reports a failure.
func (s *ConversationState) MarkToolError(callID string) {
	if s.ToolErrors == nil {
		s.ToolErrors = map[string]bool{}
	}
	s.ToolErrors[callID] = true
}

// Clone returns a deep copy, so a failed turn can be discarded without
// touching the checkpointed snapshot.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]*schema.Message, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = CloneMessage(m)
	}
	if s.ToolRounds != nil {
		c.ToolRounds = maps.Clone(s.ToolRounds)
	}
	if s.ToolErrors != nil {
		c.ToolErrors = maps.Clone(s.ToolErrors)
	}
	return &c
}

// LastMessage returns the newest message or nil.
func (s *ConversationState) LastMessage() *schema.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// TurnInput is what the graph receives for one turn: the thread's last
// checkpoint plus the inbound message.
type TurnInput struct {
	Prior        *ConversationState
	Query        string
	DocumentHint string
	Identity     Identity
}

// Identity is the caller identity attached to each inbound turn.
type Identity struct {
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	JobTitle     string `json:"job_title"`
}

// Ptr returns a pointer to v, for building StateUpdate literals.
func Ptr[T any](v T) *T {
	return &v
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setNonEmpty(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}
