package kernel

import (
	"encoding/json"
	"fmt"
	"sync"
)

// loopDetectorWindow bounds the sliding history of
// the last K tool-use signatures kept per actor.
const loopDetectorWindow = 10

// loopDetectorRepeat is the number of trailing identical signatures that
// triggers an interrupt.
const loopDetectorRepeat = 3

// LoopDetector maintains, per actor, a bounded sliding window of recent
// (tool name, canonical args) signatures and flags three-in-a-row repeats.
type LoopDetector struct {
	mu      sync.Mutex
	history map[string][]string
}

// NewLoopDetector creates an empty detector.
func NewLoopDetector() *LoopDetector {
	return &LoopDetector{history: make(map[string][]string)}
}

// signature canonicalizes (toolName, args) into the comparison key used by
// the detector. Canonicalization round-trips args through json.Unmarshal/
// Marshal so that key order and whitespace don't defeat comparison.
func signature(toolName string, args json.RawMessage) string {
	var v any
	canon := args
	if len(args) > 0 {
		if err := json.Unmarshal(args, &v); err == nil {
			if b, err := json.Marshal(v); err == nil {
				canon = b
			}
		}
	}
	return fmt.Sprintf("%s\x00%s", toolName, string(canon))
}

// Observe records one tool-use event for actorName and reports whether the
// last three recorded signatures for that actor are now identical. When it
// reports true, the actor's signature history has already been cleared, so
// a loop must reform (three fresh repeats) before firing again.
func (d *LoopDetector) Observe(actorName, toolName string, args json.RawMessage) (fired bool, reason string) {
	sig := signature(toolName, args)

	d.mu.Lock()
	defer d.mu.Unlock()

	hist := append(d.history[actorName], sig)
	if len(hist) > loopDetectorWindow {
		hist = hist[len(hist)-loopDetectorWindow:]
	}
	d.history[actorName] = hist

	n := len(hist)
	if n >= loopDetectorRepeat &&
		hist[n-1] == hist[n-2] && hist[n-2] == hist[n-3] {
		delete(d.history, actorName)
		return true, fmt.Sprintf("Loop Detected: %s repeated %s %d times", actorName, toolName, loopDetectorRepeat)
	}
	return false, ""
}

// Reset clears recorded history for actorName (used when an actor stops or
// is respawned).
func (d *LoopDetector) Reset(actorName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, actorName)
}
