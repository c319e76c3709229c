package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// extraToolError marks a tool-result message whose content is an error report.
const extraToolError = "is_error"

// NewToolResult builds a successful tool-result message for call.
func NewToolResult(call schema.ToolCall, content string) *schema.Message {
	return schema.ToolMessage(content, call.ID, schema.WithToolName(call.Function.Name))
}

// NewToolError builds an error-flagged tool-result message for call. The model
// sees the failure text and may retry with different arguments.
func NewToolError(call schema.ToolCall, err error) *schema.Message {
	msg := schema.ToolMessage(ToolErrorContent(err), call.ID, schema.WithToolName(call.Function.Name))
	FlagToolError(msg)
	return msg
}

// ToolErrorContent renders err as the JSON payload of a failed tool result.
func ToolErrorContent(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

// FlagToolError marks an existing tool-result message as an error report.
func FlagToolError(msg *schema.Message) {
	if msg.Extra == nil {
		msg.Extra = map[string]any{}
	}
	msg.Extra[extraToolError] = true
}

// IsToolError reports whether msg is an error-flagged tool result.
func IsToolError(msg *schema.Message) bool {
	if msg == nil || msg.Role != schema.Tool || msg.Extra == nil {
		return false
	}
	v, _ := msg.Extra[extraToolError].(bool)
	return v
}

// HasToolCalls reports whether msg is an assistant message requesting tools.
func HasToolCalls(msg *schema.Message) bool {
	return msg != nil && msg.Role == schema.Assistant && len(msg.ToolCalls) > 0
}

// DescribeMessage renders a one-line summary of msg for logs and prompts.
func DescribeMessage(msg *schema.Message) string {
	if msg == nil {
		return "<nil>"
	}
	switch msg.Role {
	case schema.System:
		return "system: " + msg.Content
	case schema.User:
		return "human: " + msg.Content
	case schema.Assistant:
		if len(msg.ToolCalls) > 0 {
			names := make([]string, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				names = append(names, tc.Function.Name)
			}
			return fmt.Sprintf("assistant: requested tools %v", names)
		}
		return "assistant: " + msg.Content
	case schema.Tool:
		if IsToolError(msg) {
			return fmt.Sprintf("tool %s (%s) failed: %s", msg.ToolName, msg.ToolCallID, msg.Content)
		}
		return fmt.Sprintf("tool %s (%s): %s", msg.ToolName, msg.ToolCallID, msg.Content)
	default:
		return fmt.Sprintf("%s: %s", msg.Role, msg.Content)
	}
}

// ValidateToolPairing checks that every tool result answers exactly one tool
// call emitted by an earlier assistant message.
func ValidateToolPairing(msgs []*schema.Message) error {
	pending := map[string]bool{}
	for i, msg := range msgs {
		if msg == nil {
			return fmt.Errorf("message %d is nil", i)
		}
		switch msg.Role {
		case schema.Assistant:
			for _, tc := range msg.ToolCalls {
				if tc.ID == "" {
					return fmt.Errorf("message %d: tool call %q has no id", i, tc.Function.Name)
				}
				pending[tc.ID] = true
			}
		case schema.Tool:
			if !pending[msg.ToolCallID] {
				return fmt.Errorf("message %d: tool result %q has no matching tool call", i, msg.ToolCallID)
			}
			delete(pending, msg.ToolCallID)
		}
	}
	return nil
}

// CloneMessage copies msg deeply enough that checkpoints never share mutable
// slices, maps or pointers with an in-flight turn.
func CloneMessage(msg *schema.Message) *schema.Message {
	if msg == nil {
		return nil
	}
	c := *msg
	if msg.ToolCalls != nil {
		c.ToolCalls = make([]schema.ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			c.ToolCalls[i] = cloneToolCall(tc)
		}
	}
	if msg.Extra != nil {
		c.Extra = maps.Clone(msg.Extra)
	}
	if msg.ResponseMeta != nil {
		meta := *msg.ResponseMeta
		if meta.Usage != nil {
			usage := *meta.Usage
			meta.Usage = &usage
		}
		c.ResponseMeta = &meta
	}
	return &c
}

func cloneToolCall(tc schema.ToolCall) schema.ToolCall {
	if tc.Index != nil {
		idx := *tc.Index
		tc.Index = &idx
	}
	if tc.Extra != nil {
		tc.Extra = maps.Clone(tc.Extra)
	}
	return tc
}

// UniqueToolCallIDs gives every call of msg an id that is not empty, not
// repeated within msg and not already used by an earlier message. Some
// providers reuse the tool name as the id, which would pair two results of
// the same tool with one call.
func UniqueToolCallIDs(msg *schema.Message, history []*schema.Message, newID func() string) {
	if msg == nil || len(msg.ToolCalls) == 0 {
		return
	}
	used := map[string]bool{}
	for _, h := range history {
		if h == nil || h == msg {
			continue
		}
		for _, tc := range h.ToolCalls {
			used[tc.ID] = true
		}
	}
	for i := range msg.ToolCalls {
		id := strings.TrimSpace(msg.ToolCalls[i].ID)
		for id == "" || used[id] {
			id = newID()
		}
		msg.ToolCalls[i].ID = id
		used[id] = true
	}
}
