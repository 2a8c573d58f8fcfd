package peer

import "sync"

// ProgramState holds run-wide registries keyed by slot identity. The first
// construction for a slot populates it, later ones read it.
type ProgramState struct {
    mu      sync.Mutex
    slots   map[any]any
    closers []func()
    closed  bool
}

func NewProgramState() *ProgramState { return &ProgramState{slots: make(map[any]any)} }

// Slot returns the value stored under key, creating it with create when the
// slot is empty. Concurrent callers for one key observe the same value.
func (s *ProgramState) Slot(key any, create func() any) any {
    s.mu.Lock(); defer s.mu.Unlock()
    if v, ok := s.slots[key]; ok { return v }
    v := create()
    s.slots[key] = v
    return v
}

// Lookup returns the value under key without creating it.
func (s *ProgramState) Lookup(key any) (any, bool) {
    s.mu.Lock(); defer s.mu.Unlock()
    v, ok := s.slots[key]
    return v, ok
}

// Delete empties a slot.
func (s *ProgramState) Delete(key any) {
    s.mu.Lock(); delete(s.slots, key); s.mu.Unlock()
}

// OnClose registers f to run when the run ends. After Close, f runs at once.
func (s *ProgramState) OnClose(f func()) {
    s.mu.Lock()
    if s.closed { s.mu.Unlock(); f(); return }
    s.closers = append(s.closers, f)
    s.mu.Unlock()
}

// Close releases everything registered with OnClose, in reverse order.
func (s *ProgramState) Close() {
    s.mu.Lock()
    if s.closed { s.mu.Unlock(); return }
    s.closed = true
    cl := s.closers
    s.closers = nil
    s.mu.Unlock()
    for i := len(cl) - 1; i >= 0; i-- { cl[i]() }
}
