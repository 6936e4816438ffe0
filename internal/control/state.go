package control

// Snapshot is a read-only copy of the control state for display and tests.
type Snapshot struct {
	Mode     Mode
	Owner    ClientID
	HasOwner bool
	Problems []Problem
	// Scanning is set between an acknowledged start_scan and its stop/finish.
	Scanning bool
	// ScanSeq counts acknowledged start_scan requests.
	ScanSeq uint64
	// Forwarding is set while a device command is outstanding at the gateway.
	Forwarding bool
}

// State is the authoritative {mode, owner, problems} triple plus the
// in-flight markers. Mode is derived, never assigned by callers.
type State struct {
	mode       Mode
	owner      ClientID
	hasOwner   bool
	problems   *ProblemSet
	scanning   bool
	scanSeq    uint64
	forwarding bool
}

// NewState returns the startup state: manual, no owner, no problems.
func NewState() *State {
	s := &State{problems: NewProblemSet()}
	s.recomputeMode()
	return s
}

func (s *State) Mode() Mode {
	return s.mode
}

func (s *State) Owner() (ClientID, bool) {
	return s.owner, s.hasOwner
}

func (s *State) isOwner(c ClientID) bool {
	return s.hasOwner && s.owner == c
}

func (s *State) Snapshot() Snapshot {
	out := Snapshot{
		Mode:       s.mode,
		Owner:      s.owner,
		HasOwner:   s.hasOwner,
		Scanning:   s.scanning,
		ScanSeq:    s.scanSeq,
		Forwarding: s.forwarding,
	}
	if s.problems != nil {
		out.Problems = s.problems.List()
	} else {
		out.Problems = []Problem{}
	}
	return out
}

func (s *State) setOwner(c ClientID) {
	s.owner = c
	s.hasOwner = true
	s.recomputeMode()
}

func (s *State) clearOwner() {
	s.owner = ""
	s.hasOwner = false
	s.recomputeMode()
}

func (s *State) markScanning() {
	s.scanning = true
	s.scanSeq++
}

func (s *State) addProblem(p Problem) bool {
	changed := s.problems.Add(p)
	s.recomputeMode()
	return changed
}

func (s *State) removeProblem(p Problem) bool {
	changed := s.problems.Remove(p)
	s.recomputeMode()
	return changed
}

// recomputeMode applies problems -> owner -> manual precedence. Leaving
// automated drops the scan marker: a resumed session must reissue start_scan.
func (s *State) recomputeMode() {
	prev := s.mode
	switch {
	case s.problems != nil && !s.problems.IsEmpty():
		s.mode = ModeProblem
	case s.hasOwner:
		s.mode = ModeAutomated
	default:
		s.mode = ModeManual
	}
	if prev == ModeAutomated && s.mode != ModeAutomated {
		s.scanning = false
	}
}
