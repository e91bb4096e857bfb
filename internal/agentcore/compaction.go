package agentcore

import (
	"context"

	"github.com/valerka1292/conclave/pkg/models"
)

// maybeCompact runs memory compaction when history exceeds the
// soft threshold. It is a no-op if no valid split point respecting the
// tool-call-pair invariant exists at or before the minimum tail size, and
// it never mutates history on oracle failure (atomic swap only on
// success).
func (a *Agent) maybeCompact(ctx context.Context) {
	hist := a.History()
	if len(hist) <= compactionSoftThreshold {
		return
	}

	splitIdx := safeSplitIndex(hist, safeTailMinSize)
	if splitIdx <= 0 {
		return
	}
	prefix := hist[:splitIdx]
	tail := hist[splitIdx:]

	factual, err := a.oracle.Complete(ctx, Request{
		SystemPrompt: "Summarize the objective facts established so far in this conversation. Be terse; no opinions.",
		History:      prefix,
		Temperature:  0,
	})
	if err != nil {
		a.logger.Error("compaction factual summary failed", "error", err)
		return
	}
	plan, err := a.oracle.Complete(ctx, Request{
		SystemPrompt: "Note the current plan and any open threads or next steps from this conversation.",
		History:      prefix,
		Temperature:  0,
	})
	if err != nil {
		a.logger.Error("compaction plan summary failed", "error", err)
		return
	}

	newHistory := make([]models.HistoryRecord, 0, len(tail)+2)
	newHistory = append(newHistory,
		models.HistoryRecord{Role: models.RoleSystem, Content: "[compacted summary] " + factual.Text},
		models.HistoryRecord{Role: models.RoleSystem, Content: "[plan/reflection] " + plan.Text},
	)
	newHistory = append(newHistory, tail...)

	a.mu.Lock()
	a.history = newHistory
	a.mu.Unlock()

	if a.bus != nil {
		a.bus.Publish(models.Message{Type: models.MsgMemoryCompacted, From: a.Name})
	}
}

// safeSplitIndex finds the largest split index <= len(history)-minTailSize
// such that the prefix [0:idx) never separates an assistant record's tool
// calls from their corresponding tool records (the tool-call-pair
// invariant). Returns 0 if no such index exists (compaction skipped).
func safeSplitIndex(history []models.HistoryRecord, minTailSize int) int {
	target := len(history) - minTailSize
	if target <= 0 {
		return 0
	}

	valid := make([]bool, len(history)+1)
	valid[0] = true
	pending := make(map[string]bool)
	for i, rec := range history {
		if rec.HasToolCalls() {
			for _, tc := range rec.ToolCalls {
				pending[tc.ID] = true
			}
		} else if rec.Role == models.RoleTool && rec.ToolCallID != "" {
			delete(pending, rec.ToolCallID)
		}
		valid[i+1] = len(pending) == 0
	}

	for idx := target; idx >= 0; idx-- {
		if valid[idx] {
			return idx
		}
	}
	return 0
}
