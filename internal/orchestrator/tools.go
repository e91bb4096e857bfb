package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valerka1292/conclave/pkg/models"
)

// toolKind classifies a dispatched tool call for the leader's follow-up
// determination.
type toolKind int

const (
	toolKindSend toolKind = iota
	toolKindWaitOK
	toolKindWaitEmpty
	toolKindOther
)

type chatroomSendArgs struct {
	Text       string   `json:"text"`
	Recipients []string `json:"recipients"`
}

type titleArgs struct {
	Title string `json:"title"`
}

type artifactReadArgs struct {
	ID     string `json:"id"`
	Start  int    `json:"start"`
	Length int    `json:"length"`
}

type processStartArgs struct {
	Command string `json:"command"`
}

type processReadArgs struct {
	PID   int `json:"pid"`
	Lines int `json:"lines"`
}

type processStopArgs struct {
	PID int `json:"pid"`
}

type searchArgs struct {
	Query string `json:"query"`
}

type runArgs struct {
	Code string `json:"code"`
}

// dispatchLeaderTool executes one leader tool call, appends
// its result to the leader's history as a tool record, and reports the
// classification leaderStep needs for its follow-up decision.
func (s *Session) dispatchLeaderTool(ctx context.Context, call models.ToolCallDescriptor) (toolKind, bool) {
	switch call.Name {
	case ToolChatroomSend:
		content, isError := s.chatroomSend(s.leaderName, call.Args)
		s.appendLeaderTool(call, content)
		return toolKindSend, isError
	case ToolWait:
		if !s.hasOutstandingCollaboration() {
			s.leader.appendSystem("error: wait called but no teammates are pending")
			s.appendLeaderTool(call, "no teammates pending")
			return toolKindWaitEmpty, false
		}
		s.appendLeaderTool(call, "waiting for teammate replies")
		return toolKindWaitOK, false
	case ToolSetConversationTitle:
		content, isError := s.setConversationTitle(call.Args)
		s.appendLeaderTool(call, content)
		return toolKindOther, isError
	default:
		content, isError := s.executeBackendTool(ctx, call)
		s.appendLeaderTool(call, content)
		return toolKindOther, isError
	}
}

func (s *Session) appendLeaderTool(call models.ToolCallDescriptor, content string) {
	s.leader.history = append(s.leader.history, models.HistoryRecord{
		Role: models.RoleTool, ToolCallID: call.ID, ToolName: call.Name, Content: content,
	})
}

// chatroomSend implements the chatroom_send tool: recipient
// "All" expands to every agent other than caller, duplicates are
// de-duplicated, and a recipient currently in leaderPendingTargets (only
// meaningful for the leader, which is the only caller that tracks it) is
// skipped and reported as an explicit error fragment.
func (s *Session) chatroomSend(caller string, args json.RawMessage) (string, bool) {
	var parsed chatroomSendArgs
	if err := json.Unmarshal(args, &parsed); err != nil || strings.TrimSpace(parsed.Text) == "" || len(parsed.Recipients) == 0 {
		return "error: chatroom_send requires non-empty text and at least one recipient", true
	}

	recipients := s.expandRecipients(caller, parsed.Recipients)
	if len(recipients) == 0 {
		return "error: chatroom_send resolved to no recipients", true
	}

	var delivered []string
	var fragments []string
	for _, r := range recipients {
		if caller == s.leaderName && s.leaderPendingTargets[r] {
			fragments = append(fragments, fmt.Sprintf("skipped pending teammate %s", r))
			continue
		}
		if !s.enqueueCollab(r, caller, parsed.Text) {
			fragments = append(fragments, fmt.Sprintf("unknown recipient %s", r))
			continue
		}
		if caller == s.leaderName {
			s.leaderPendingTargets[r] = true
		}
		delivered = append(delivered, r)
		s.emit(models.StreamEvent{Type: models.StreamChatroomSend, Agent: caller, To: []string{r}, Preview: preview(parsed.Text)})
	}

	result := fmt.Sprintf("sent to %v", delivered)
	if len(fragments) > 0 {
		result += "; " + strings.Join(fragments, "; ")
	}
	return result, len(delivered) == 0
}

// expandRecipients resolves the raw recipient list against the known agent
// set, expanding "All" to every agent other than caller and de-duplicating.
func (s *Session) expandRecipients(caller string, raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name == "" || name == caller || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, r := range raw {
		if r == recipientAll {
			if caller != s.leaderName {
				add(s.leaderName)
			}
			for name := range s.collaborators {
				add(name)
			}
			continue
		}
		add(r)
	}
	return out
}

func (s *Session) setConversationTitle(args json.RawMessage) (string, bool) {
	var parsed titleArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "error: invalid set_conversation_title arguments", true
	}
	title := strings.TrimSpace(parsed.Title)
	if title == "" || len(title) > maxTitleLength {
		return "error: title must be non-empty and at most 120 characters", true
	}
	s.conversationTitle = title
	s.emit(models.StreamEvent{Type: models.StreamConversationTitle, Title: title})
	return fmt.Sprintf("title set to %q", title), false
}

// executeBackendTool delegates web_search/python_run/process
// start/read/stop/artifact_read to their external backends, emitting a
// tool_use streaming event, or records an error-tagged result for an
// unknown tool name.
func (s *Session) executeBackendTool(ctx context.Context, call models.ToolCallDescriptor) (string, bool) {
	switch call.Name {
	case ToolWebSearch:
		var a searchArgs
		_ = json.Unmarshal(call.Args, &a)
		s.emit(models.StreamEvent{Type: models.StreamToolUse, Tool: call.Name, Query: a.Query})
		if s.backends.WebSearch == nil {
			return "error: web_search backend not configured", true
		}
		out, err := s.backends.WebSearch.Search(ctx, a.Query)
		if err != nil {
			return "error: " + err.Error(), true
		}
		return out, false

	case ToolPythonRun:
		var a runArgs
		_ = json.Unmarshal(call.Args, &a)
		s.emit(models.StreamEvent{Type: models.StreamToolUse, Tool: call.Name, Args: a.Code})
		if s.backends.Python == nil {
			return "error: python_run backend not configured", true
		}
		out, err := s.backends.Python.Run(ctx, a.Code)
		if err != nil {
			return "error: " + err.Error(), true
		}
		return out, false

	case ToolArtifactRead:
		var a artifactReadArgs
		_ = json.Unmarshal(call.Args, &a)
		s.emit(models.StreamEvent{Type: models.StreamToolUse, Tool: call.Name})
		if s.backends.Artifacts == nil {
			return "error: artifact_read backend not configured", true
		}
		out, err := s.backends.Artifacts.Get(ctx, a.ID, a.Start, a.Length)
		if err != nil {
			return "error: " + err.Error(), true
		}
		return out, false

	case ToolProcessStart:
		var a processStartArgs
		_ = json.Unmarshal(call.Args, &a)
		s.emit(models.StreamEvent{Type: models.StreamToolUse, Tool: call.Name})
		if s.backends.Processes == nil {
			return "error: process backend not configured", true
		}
		pid, err := s.backends.Processes.Start(a.Command)
		if err != nil {
			return "error: " + err.Error(), true
		}
		return fmt.Sprintf("started pid %d", pid), false

	case ToolProcessRead:
		var a processReadArgs
		_ = json.Unmarshal(call.Args, &a)
		s.emit(models.StreamEvent{Type: models.StreamToolUse, Tool: call.Name})
		if s.backends.Processes == nil {
			return "error: process backend not configured", true
		}
		lines, err := s.backends.Processes.Read(a.PID, a.Lines)
		if err != nil {
			return "error: " + err.Error(), true
		}
		return strings.Join(lines, "\n"), false

	case ToolProcessStop:
		var a processStopArgs
		_ = json.Unmarshal(call.Args, &a)
		s.emit(models.StreamEvent{Type: models.StreamToolUse, Tool: call.Name})
		if s.backends.Processes == nil {
			return "error: process backend not configured", true
		}
		if err := s.backends.Processes.Stop(a.PID); err != nil {
			return "error: " + err.Error(), true
		}
		return fmt.Sprintf("stopped pid %d", a.PID), false

	default:
		return fmt.Sprintf("error: unknown tool %q", call.Name), true
	}
}

func preview(text string) string {
	const maxPreview = 200
	if len(text) <= maxPreview {
		return text
	}
	return text[:maxPreview]
}
