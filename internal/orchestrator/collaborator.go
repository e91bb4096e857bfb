package orchestrator

import (
	"context"
	"fmt"

	"github.com/valerka1292/conclave/pkg/models"
)

const collaborationPolicy = "Asynchronous collaboration policy: favor sending the " +
	"leader a partial or final deliverable via chatroom_send as soon as you have one; " +
	"use at most one additional non-send tool per round before reporting back."

const finalizationDirective = "You are being forced to finalize: you may only call " +
	"chatroom_send now. Send your best available partial result to the leader."

// launchReadyCollaborators spawns a cooperative task for every collaborator
// whose mailbox is non-empty and which is not already running.
func (s *Session) launchReadyCollaborators(ctx context.Context) {
	s.mu.Lock()
	var ready []string
	for name, pending := range s.collabMailbox {
		if len(pending) == 0 {
			continue
		}
		if _, running := s.running[name]; running {
			continue
		}
		ready = append(ready, name)
	}
	s.mu.Unlock()

	for _, name := range ready {
		s.running[name] = struct{}{}
		s.tasks.Go(func() error {
			s.runCollaborator(ctx, name)
			return nil
		})
	}
}

// runCollaborator drives one collaborator's awakening to completion and
// reports the resulting stream events back to the main loop
// over s.completions.
func (s *Session) runCollaborator(ctx context.Context, name string) {
	state := s.collaborators[name]
	var events []models.StreamEvent

	s.mu.Lock()
	pending := s.collabMailbox[name]
	s.collabMailbox[name] = nil
	s.mu.Unlock()
	for _, entry := range pending {
		state.history = append(state.history, models.HistoryRecord{
			Role: models.RoleUser, Content: fmt.Sprintf("[Message from %s]: %s", entry.from, entry.content),
		})
	}

	exited, err := s.collaboratorRounds(ctx, name, state, &events, collaborationPolicy, s.maxToolsPerStep)
	if !exited && err == nil {
		err = s.forceFinalize(ctx, name, state, &events)
	}

	s.completions <- collaboratorOutcome{name: name, events: events, err: err}
}

// collaboratorRounds runs up to maxRounds think/act rounds,
// appending every streaming event produced to events. It reports whether a
// round reached a natural exit (text, chatroom_send, or neither) before the
// round budget was spent.
func (s *Session) collaboratorRounds(ctx context.Context, name string, state *agentState, events *[]models.StreamEvent, ephemeral string, maxRounds int) (exited bool, err error) {
	for round := 0; round < maxRounds; round++ {
		resp, stepErr := state.step(ctx, ephemeral)
		if stepErr != nil {
			return true, stepErr
		}
		if resp.Text != "" {
			*events = append(*events, models.StreamEvent{Type: models.StreamThought, Agent: name, Text: resp.Text})
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Text != "" {
				s.enqueueLeader(name, resp.Text)
			}
			return true, nil
		}

		sawSend := false
		for _, call := range resp.ToolCalls {
			*events = append(*events, models.StreamEvent{Type: models.StreamToolUse, Agent: name, Tool: call.Name})
			if call.Name == ToolChatroomSend {
				sawSend = true
				content, _ := s.chatroomSend(name, call.Args)
				state.history = append(state.history, models.HistoryRecord{
					Role: models.RoleTool, ToolCallID: call.ID, ToolName: call.Name, Content: content,
				})
				continue
			}
			content, _ := s.executeBackendTool(ctx, call)
			state.history = append(state.history, models.HistoryRecord{
				Role: models.RoleTool, ToolCallID: call.ID, ToolName: call.Name, Content: content,
			})
		}
		if sawSend {
			return true, nil
		}
		// only self-contained tools were used: continue to the next round.
	}
	return false, nil
}

// forceFinalize implements the recursion-limit / forced-finalization
// path: rerun with tools restricted to chatroom_send and an explicit
// finalization directive; if the collaborator still does not send,
// synthesize a placeholder message into the leader's mailbox.
func (s *Session) forceFinalize(ctx context.Context, name string, state *agentState, events *[]models.StreamEvent) error {
	s.recursionCnt[name]++
	if s.recursionCnt[name] <= s.recursionLimit {
		restricted := state.spec
		restricted.ToolCatalog = filterToSendOnly(state.spec.ToolCatalog)
		tmp := &agentState{spec: restricted, history: state.history}
		exited, err := s.collaboratorRounds(ctx, name, tmp, events, finalizationDirective, 1)
		state.history = tmp.history
		if err != nil {
			return err
		}
		if exited {
			return nil
		}
	}

	*events = append(*events, models.StreamEvent{
		Type: models.StreamStatus, Agent: name,
		Text: fmt.Sprintf("agent %q stopped on tool-step budget", name),
	})
	s.enqueueLeader(name, fmt.Sprintf("[auto] %s did not respond in time; treat as no deliverable yet.", name))
	return nil
}

func filterToSendOnly(catalog []models.FunctionTool) []models.FunctionTool {
	for _, t := range catalog {
		if t.Function.Name == ToolChatroomSend {
			return []models.FunctionTool{t}
		}
	}
	return catalog
}
