package control

import "slices"

// ProblemSet is the registry of currently active experiment problems.
// It is not safe for concurrent use; the router serializes access.
type ProblemSet struct {
	items map[Problem]struct{}
}

func NewProblemSet() *ProblemSet {
	return &ProblemSet{items: make(map[Problem]struct{})}
}

// Add inserts p and reports whether the set changed. ProblemNone is never stored.
func (s *ProblemSet) Add(p Problem) bool {
	if p == ProblemNone {
		return false
	}
	if _, ok := s.items[p]; ok {
		return false
	}
	s.items[p] = struct{}{}
	return true
}

// Remove deletes p if present and reports whether the set changed.
func (s *ProblemSet) Remove(p Problem) bool {
	if _, ok := s.items[p]; !ok {
		return false
	}
	delete(s.items, p)
	return true
}

func (s *ProblemSet) Has(p Problem) bool {
	_, ok := s.items[p]
	return ok
}

func (s *ProblemSet) IsEmpty() bool {
	return len(s.items) == 0
}

func (s *ProblemSet) Len() int {
	return len(s.items)
}

// List returns the active problems in ascending id order.
func (s *ProblemSet) List() []Problem {
	out := make([]Problem, 0, len(s.items))
	for p := range s.items {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
