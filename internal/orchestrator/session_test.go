package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerka1292/conclave/internal/agentcore"
	"github.com/valerka1292/conclave/pkg/models"
)

// scriptedOracle replays a fixed sequence of responses, one per call, keyed
// by nothing in particular — each agentState gets its own instance so a
// test can script the leader and each collaborator independently.
type scriptedOracle struct {
	mu        sync.Mutex
	responses []agentcore.Response
	calls     []agentcore.Request
}

func (o *scriptedOracle) Complete(ctx context.Context, req agentcore.Request) (agentcore.Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, req)
	if len(o.responses) == 0 {
		return agentcore.Response{}, nil
	}
	resp := o.responses[0]
	o.responses = o.responses[1:]
	return resp, nil
}

func (o *scriptedOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

func sendArgs(t *testing.T, text string, recipients ...string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(chatroomSendArgs{Text: text, Recipients: recipients})
	require.NoError(t, err)
	return b
}

func waitArgs() json.RawMessage { return json.RawMessage(`{}`) }

func drain(ch <-chan models.StreamEvent) []models.StreamEvent {
	var out []models.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// TestPlainTextAnswerIsFinalWithNoCollaborators: the leader answers
// immediately, no collaborator is ever involved, and the
// thought event precedes the token stream for the same text.
func TestPlainTextAnswerIsFinalWithNoCollaborators(t *testing.T) {
	leaderOracle := &scriptedOracle{responses: []agentcore.Response{
		{ToolCalls: []models.ToolCallDescriptor{{ID: "tc1", Name: ToolSetConversationTitle, Args: mustJSON(t, titleArgs{Title: "Greeting"})}}},
		{Text: "Hi!"},
	}}
	sess := NewSession(Config{
		Leader: AgentSpec{Name: "Leader", Oracle: leaderOracle},
	})

	events := drain(sess.RunStreaming(context.Background(), "hello"))

	require.Equal(t, 2, leaderOracle.callCount(), "leader must be re-entered after the title tool to produce its answer")
	var gotTitle, gotToken, gotThought bool
	thoughtIdx, tokenIdx := -1, -1
	for i, ev := range events {
		switch ev.Type {
		case models.StreamConversationTitle:
			gotTitle = true
			assert.Equal(t, "Greeting", ev.Title)
		case models.StreamThought:
			gotThought = true
			thoughtIdx = i
		case models.StreamToken:
			gotToken = true
			if tokenIdx == -1 {
				tokenIdx = i
			}
			assert.Equal(t, "Hi!", ev.TokenText)
		}
	}
	assert.True(t, gotTitle)
	assert.True(t, gotThought)
	assert.True(t, gotToken)
	assert.Less(t, thoughtIdx, tokenIdx, "thought must precede the token stream it produced")
	assert.Equal(t, models.StreamDone, events[len(events)-1].Type)
}

// TestSingleDelegationRoundTrip: the leader delegates to one
// collaborator, waits, and relays the collaborator's reply
// as its final answer.
func TestSingleDelegationRoundTrip(t *testing.T) {
	leaderOracle := &scriptedOracle{responses: []agentcore.Response{
		{ToolCalls: []models.ToolCallDescriptor{{ID: "tc1", Name: ToolChatroomSend, Args: sendArgs(t, "please compute 2+2", "Helper")}}},
		{ToolCalls: []models.ToolCallDescriptor{{ID: "tc2", Name: ToolWait, Args: waitArgs()}}},
		{Text: "The answer is 4."},
	}}
	helperOracle := &scriptedOracle{responses: []agentcore.Response{
		{Text: "4"},
	}}

	sess := NewSession(Config{
		Leader:        AgentSpec{Name: "Leader", Oracle: leaderOracle},
		Collaborators: []AgentSpec{{Name: "Helper", Oracle: helperOracle}},
	})

	events := drain(sess.RunStreaming(context.Background(), "what is 2+2?"))

	require.Equal(t, 1, helperOracle.callCount())
	require.Equal(t, 3, leaderOracle.callCount())

	var sawSend, sawFinal bool
	for _, ev := range events {
		if ev.Type == models.StreamChatroomSend {
			sawSend = true
			assert.Equal(t, []string{"Helper"}, ev.To)
		}
		if ev.Type == models.StreamToken && ev.TokenText == "The answer is 4." {
			sawFinal = true
		}
	}
	assert.True(t, sawSend)
	assert.True(t, sawFinal)
	assert.Equal(t, models.StreamDone, events[len(events)-1].Type)
}

// TestLeaderDoesNotResendToAPendingCollaborator: issuing chatroom_send
// twice to the same still-pending teammate before its
// reply arrives must not deliver the second message.
func TestLeaderDoesNotResendToAPendingCollaborator(t *testing.T) {
	sess := NewSession(Config{
		Leader:        AgentSpec{Name: "Leader", Oracle: &scriptedOracle{}},
		Collaborators: []AgentSpec{{Name: "Helper", Oracle: &scriptedOracle{}}},
	})

	sess.mu.Lock()
	sess.leaderPendingTargets["Helper"] = true
	sess.mu.Unlock()

	// directly exercise chatroomSend's pending-skip branch rather than the
	// full run loop, since the full loop's timing against a collaborator
	// goroutine is not deterministic from the outside.
	result, isErr := sess.chatroomSend("Leader", sendArgs(t, "are you done yet?", "Helper"))
	assert.True(t, isErr)
	assert.Contains(t, result, "skipped pending teammate Helper")
}

// TestChatroomSendAllExpandsAndDedups covers the "All" recipient
// expansion and de-duplication rules.
func TestChatroomSendAllExpandsAndDedups(t *testing.T) {
	sess := NewSession(Config{
		Leader: AgentSpec{Name: "Leader", Oracle: &scriptedOracle{}},
		Collaborators: []AgentSpec{
			{Name: "A", Oracle: &scriptedOracle{}},
			{Name: "B", Oracle: &scriptedOracle{}},
		},
	})

	recipients := sess.expandRecipients("Leader", []string{recipientAll, "A"})
	assert.ElementsMatch(t, []string{"A", "B"}, recipients)

	asCollab := sess.expandRecipients("A", []string{recipientAll})
	assert.ElementsMatch(t, []string{"Leader", "B"}, asCollab)
}

// TestChatroomSendUnknownRecipientIsReportedNotFatal ensures an unknown
// recipient degrades to a fragment, and the call is only an error when zero
// recipients end up delivered.
func TestChatroomSendUnknownRecipientIsReportedNotFatal(t *testing.T) {
	sess := NewSession(Config{
		Leader:        AgentSpec{Name: "Leader", Oracle: &scriptedOracle{}},
		Collaborators: []AgentSpec{{Name: "Helper", Oracle: &scriptedOracle{}}},
	})

	result, isErr := sess.chatroomSend("Leader", sendArgs(t, "hi", "Helper", "Ghost"))
	assert.False(t, isErr)
	assert.Contains(t, result, "unknown recipient Ghost")
	assert.Contains(t, result, "Helper")
}

func TestChatroomSendAllRecipientsUnknownIsAnError(t *testing.T) {
	sess := NewSession(Config{
		Leader: AgentSpec{Name: "Leader", Oracle: &scriptedOracle{}},
	})

	result, isErr := sess.chatroomSend("Leader", sendArgs(t, "hi", "Ghost"))
	assert.True(t, isErr)
	assert.Contains(t, result, "unknown recipient Ghost")
}

// TestForceFinalizeSynthesizesPlaceholderWhenCollaboratorNeverSends covers
// the forced-finalization path: a collaborator that only ever
// calls self-contained tools exhausts its round budget, gets one
// send-only retry, and if that also does not send, the leader gets an
// auto-guard placeholder instead of hanging forever.
func TestForceFinalizeSynthesizesPlaceholderWhenCollaboratorNeverSends(t *testing.T) {
	leaderOracle := &scriptedOracle{responses: []agentcore.Response{
		{ToolCalls: []models.ToolCallDescriptor{{ID: "tc1", Name: ToolChatroomSend, Args: sendArgs(t, "dig in", "Helper")}}},
		{ToolCalls: []models.ToolCallDescriptor{{ID: "tc2", Name: ToolWait, Args: waitArgs()}}},
		{Text: "I had to move on without Helper."},
	}}

	stuckResp := agentcore.Response{ToolCalls: []models.ToolCallDescriptor{{ID: "s1", Name: ToolPythonRun, Args: json.RawMessage(`{"code":"1+1"}`)}}}
	var helperResponses []agentcore.Response
	for i := 0; i < defaultMaxAgentToolCallsPerStep+1; i++ {
		helperResponses = append(helperResponses, stuckResp)
	}
	helperOracle := &scriptedOracle{responses: helperResponses}

	sess := NewSession(Config{
		Leader: AgentSpec{Name: "Leader", Oracle: leaderOracle},
		Collaborators: []AgentSpec{{
			Name: "Helper", Oracle: helperOracle,
			ToolCatalog: []models.FunctionTool{
				{Function: models.FunctionToolBody{Name: ToolChatroomSend}},
				{Function: models.FunctionToolBody{Name: ToolPythonRun}},
			},
		}},
		Backends: Backends{Python: fakePython{result: "2"}},
	})

	events := drain(sess.RunStreaming(context.Background(), "ask helper to think forever"))

	var sawPlaceholderStatus bool
	for _, ev := range events {
		if ev.Type == models.StreamStatus && ev.Agent == "Helper" {
			sawPlaceholderStatus = true
		}
	}
	assert.True(t, sawPlaceholderStatus, "forced finalization must emit a status event when the collaborator never sends")
	assert.Equal(t, models.StreamDone, events[len(events)-1].Type)
}

type fakePython struct {
	result string
}

func (f fakePython) Run(ctx context.Context, code string) (string, error) {
	return f.result, nil
}

func TestSessionBudgetExhaustionEmitsErrorThenDone(t *testing.T) {
	var responses []agentcore.Response
	// the leader keeps calling a self-contained tool forever, which always
	// requires a follow-up step, so the session budget is what stops it.
	for i := 0; i < defaultSessionBudget+2; i++ {
		responses = append(responses, agentcore.Response{
			ToolCalls: []models.ToolCallDescriptor{{ID: "x", Name: ToolWebSearch, Args: json.RawMessage(`{"query":"q"}`)}},
		})
	}
	leaderOracle := &scriptedOracle{responses: responses}
	sess := NewSession(Config{
		Leader:   AgentSpec{Name: "Leader", Oracle: leaderOracle},
		Backends: Backends{WebSearch: fakeSearch{result: "ok"}},
	})

	events := drain(sess.RunStreaming(context.Background(), "loop forever"))

	var sawBudgetError bool
	for _, ev := range events {
		if ev.Type == models.StreamError {
			sawBudgetError = true
		}
	}
	assert.True(t, sawBudgetError)
	assert.Equal(t, models.StreamDone, events[len(events)-1].Type)
}

type fakeSearch struct{ result string }

func (f fakeSearch) Search(ctx context.Context, query string) (string, error) { return f.result, nil }

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRunReturnsFinalAnswerText(t *testing.T) {
	leaderOracle := &scriptedOracle{responses: []agentcore.Response{{Text: "done"}}}
	sess := NewSession(Config{Leader: AgentSpec{Name: "Leader", Oracle: leaderOracle}})

	answer, err := sess.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "done", answer)
}

func TestSetConversationTitleValidatesLength(t *testing.T) {
	sess := NewSession(Config{Leader: AgentSpec{Name: "Leader", Oracle: &scriptedOracle{}}})

	_, isErr := sess.setConversationTitle(mustJSON(t, titleArgs{Title: ""}))
	assert.True(t, isErr)

	result, isErr := sess.setConversationTitle(mustJSON(t, titleArgs{Title: "A Fine Title"}))
	assert.False(t, isErr)
	assert.Contains(t, result, "A Fine Title")
	assert.Equal(t, "A Fine Title", sess.conversationTitle)
}

func TestWaitWithNothingPendingIsAnErroredToolRequiringFollowUp(t *testing.T) {
	leaderOracle := &scriptedOracle{responses: []agentcore.Response{
		{ToolCalls: []models.ToolCallDescriptor{{ID: "tc1", Name: ToolWait, Args: waitArgs()}}},
		{Text: "ok nevermind"},
	}}
	sess := NewSession(Config{Leader: AgentSpec{Name: "Leader", Oracle: leaderOracle}})

	events := drain(sess.RunStreaming(context.Background(), "hi"))

	require.Equal(t, 2, leaderOracle.callCount(), "an empty wait must force a follow-up step rather than hang")
	assert.Equal(t, models.StreamDone, events[len(events)-1].Type)
}
