package monitor

import "sort"

// VersionEpoch is the version currently tracked as in development.
// ReleasedName is set only on the epoch reported by a rollover.
type VersionEpoch struct {
	ID           int
	ReleasedName string
}

// State is everything the monitor remembers between ticks. It lives in memory
// only; a restart rebuilds it with a silent first pass.
//
// State is not safe for concurrent use. The scheduler never runs two ticks
// at once.
type State struct {
	Epoch           VersionEpoch
	FirstPassDone   bool
	LastDevlogTitle string

	known map[string]struct{}
}

func NewState(epoch VersionEpoch) *State {
	return &State{Epoch: epoch, known: make(map[string]struct{})}
}

func (s *State) isKnown(id string) bool {
	_, ok := s.known[id]
	return ok
}

// Record adds id to the known set and reports whether it was new.
func (s *State) Record(id string) bool {
	if s.known == nil {
		s.known = make(map[string]struct{})
	}
	if _, ok := s.known[id]; ok {
		return false
	}
	s.known[id] = struct{}{}
	return true
}

func (s *State) KnownCount() int { return len(s.known) }

// knownIDs returns the known issue ids in sorted order.
func (s *State) knownIDs() []string {
	out := make([]string, 0, len(s.known))
	for id := range s.known {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// rollover moves to the next epoch and forgets every known id. It returns
// the epoch that was just released.
func (s *State) rollover(name string) VersionEpoch {
	released := VersionEpoch{ID: s.Epoch.ID, ReleasedName: name}
	s.Epoch = VersionEpoch{ID: s.Epoch.ID + 1}
	clear(s.known)
	return released
}
