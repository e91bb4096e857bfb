package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/valerka1292/conclave/pkg/models"
)

// leaderStep runs one leader oracle call and its tool handling. It
// reports whether the session is now finished (a final answer
// was produced and there is no outstanding collaboration).
func (s *Session) leaderStep(ctx context.Context) (done bool) {
	resp, err := s.leader.step(ctx, s.pendingStatus())
	if err != nil {
		s.logger.Error("leader step failed", "error", err)
		s.emit(models.StreamEvent{Type: models.StreamError, Agent: s.leaderName, Error: err.Error()})
		s.followUpRequired = true
		return false
	}

	if resp.Text != "" {
		s.emit(models.StreamEvent{Type: models.StreamThought, Agent: s.leaderName, Text: resp.Text})
	}

	if len(resp.ToolCalls) == 0 {
		if resp.Text == "" {
			s.leader.appendSystem("error: you must respond with either text or a tool call")
			s.followUpRequired = true
			return false
		}
		if s.hasOutstandingCollaboration() {
			// Not final: the leader will be re-entered once the mailbox
			// drains.
			return false
		}
		s.emitFinalTokens(resp.Text)
		return true
	}

	var anyOther, anyErrored, anyWaitEmpty bool
	for _, call := range resp.ToolCalls {
		kind, isError := s.dispatchLeaderTool(ctx, call)
		switch kind {
		case toolKindWaitEmpty:
			anyWaitEmpty = true
		case toolKindOther:
			anyOther = true
		}
		if isError {
			anyErrored = true
		}
	}
	if anyOther || anyErrored || anyWaitEmpty {
		s.followUpRequired = true
	}
	return false
}

// hasOutstandingCollaboration reports whether the leader currently has a
// collaborator task running or a collaborator mailbox still pending.
func (s *Session) hasOutstandingCollaboration() bool {
	return s.anyRunning() || s.anyMailboxPending()
}

// pendingStatus builds the transient status message pressuring the leader
// to call wait when it still owes replies from teammates.
func (s *Session) pendingStatus() string {
	if len(s.leaderPendingTargets) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.leaderPendingTargets))
	for name := range s.leaderPendingTargets {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("Still awaiting a reply from: %s. Call wait if you have nothing else to do.",
		strings.Join(names, ", "))
}
