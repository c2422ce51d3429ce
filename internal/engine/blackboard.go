package engine

import "sync"

// Blackboard is the shared key-value state accumulated across step
// completions. It lives for a whole conversation session and persists
// across plan executions within that session. Values are never deleted
// during a run; all writes flow through the executor's merge.
type Blackboard struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewBlackboard() *Blackboard {
	return &Blackboard{data: make(map[string]any)}
}

// StepKey is the blackboard key holding a completed step's full output.
func StepKey(stepID string) string {
	return "step_" + stepID
}

// Get returns the value for a key.
func (b *Blackboard) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	return v, ok
}

// Set writes a single semantic key. Used by callers seeding state before
// a run (e.g. a source URL); steps never call this directly.
func (b *Blackboard) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
}

// Snapshot returns a shallow copy of the current state. The resolver
// reads only snapshots, taken at the moment a step becomes ready.
func (b *Blackboard) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := make(map[string]any, len(b.data))
	for k, v := range b.data {
		snap[k] = v
	}
	return snap
}

// Len reports the number of stored keys.
func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Restore loads a previously persisted snapshot, overwriting nothing that
// is not present in it. Used when resuming a session from the store.
func (b *Blackboard) Restore(snap map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range snap {
		b.data[k] = v
	}
}

// merge writes a completed step's output under its step-result key and,
// for each declared semantic output key present in the output, under that
// semantic key. The executor calls this from its coordinating loop only,
// so merges are serialized relative to each other; colliding semantic
// keys resolve last-writer-wins by completion time.
func (b *Blackboard) merge(stepID string, output map[string]any, outputKeys map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[StepKey(stepID)] = output
	for outputField, semanticKey := range outputKeys {
		if v, ok := output[outputField]; ok {
			b.data[semanticKey] = v
		}
	}
}
