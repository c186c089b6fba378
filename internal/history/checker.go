package history

import (
	"fmt"
	"sort"
)

// Violation carries the minimal conflicting operation subsequence that
// witnesses a consistency contract breach.
type Violation struct {
	Contract Contract
	Message  string
	Ops      []Op
}

// Error implements the error interface
func (v *Violation) Error() string {
	return fmt.Sprintf("%s violation: %s", v.Contract, v.Message)
}

// Check runs the decision procedure for the given contract against a recorded
// history. It returns nil when the history is admissible. Only completed,
// non-rejected operations constrain the verdict.
func Check(contract Contract, ops []Op) *Violation {
	done := completed(ops)
	switch contract {
	case ContractLinearizable:
		return checkLinearizable(done)
	case ContractSession:
		return checkSession(done)
	case ContractMonotonicSession:
		if v := checkSession(done); v != nil {
			v.Contract = ContractMonotonicSession
			return v
		}
		return checkMonotonic(done)
	default:
		return nil
	}
}

func completed(ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	for _, o := range ops {
		if o.Completed >= 0 && !o.Rejected {
			out = append(out, o)
		}
	}
	return out
}

// checkLinearizable validates that all operations admit a total order
// consistent with real-time non-overlap: commit revisions of writes respect
// completion-before-invocation ordering, and any read starting after a
// write's visible completion observes at least that write's revision.
func checkLinearizable(ops []Op) *Violation {
	var writes, reads []Op
	for _, o := range ops {
		if o.Write() {
			writes = append(writes, o)
		} else {
			reads = append(reads, o)
		}
	}

	seen := make(map[int64]Op, len(writes))
	for _, w := range writes {
		if prev, ok := seen[int64(w.Revision)]; ok {
			return &Violation{
				Contract: ContractLinearizable,
				Message:  fmt.Sprintf("two writes committed at revision %s", w.Revision),
				Ops:      []Op{prev, w},
			}
		}
		seen[int64(w.Revision)] = w
	}

	for _, w1 := range writes {
		for _, w2 := range writes {
			if w1.Completed < w2.Invoked && w1.Revision >= w2.Revision {
				return &Violation{
					Contract: ContractLinearizable,
					Message: fmt.Sprintf("write at revision %s completed before write at revision %s started, out of real-time order",
						w1.Revision, w2.Revision),
					Ops: []Op{w1, w2},
				}
			}
		}
	}

	for _, r := range reads {
		for _, w := range writes {
			if w.Completed < r.Invoked && overlaps(r, w) && r.Revision < w.Revision {
				return &Violation{
					Contract: ContractLinearizable,
					Message: fmt.Sprintf("read observed revision %s but overlapping write at revision %s had completed before the read started",
						r.Revision, w.Revision),
					Ops: []Op{w, r},
				}
			}
		}
	}
	return nil
}

// checkSession validates per-client ordering: observed revisions never regress
// within a session, and a session's reads see its own prior writes.
func checkSession(ops []Op) *Violation {
	sessions := make(map[string][]Op)
	var order []string
	for _, o := range ops {
		if _, ok := sessions[o.Session]; !ok {
			order = append(order, o.Session)
		}
		sessions[o.Session] = append(sessions[o.Session], o)
	}
	sort.Strings(order)

	for _, session := range order {
		sops := append([]Op(nil), sessions[session]...)
		sort.Slice(sops, func(i, j int) bool { return sops[i].Completed < sops[j].Completed })

		for i := 1; i < len(sops); i++ {
			if sops[i].Revision < sops[i-1].Revision {
				return &Violation{
					Contract: ContractSession,
					Message: fmt.Sprintf("session %s observed revision %s after revision %s",
						session, sops[i].Revision, sops[i-1].Revision),
					Ops: []Op{sops[i-1], sops[i]},
				}
			}
		}

		for _, r := range sops {
			if r.Write() {
				continue
			}
			for _, w := range sops {
				if w.Write() && w.Completed < r.Invoked && r.Revision < w.Revision {
					return &Violation{
						Contract: ContractSession,
						Message: fmt.Sprintf("session %s read revision %s missing its own write at revision %s",
							session, r.Revision, w.Revision),
						Ops: []Op{w, r},
					}
				}
			}
		}
	}
	return nil
}

// checkMonotonic validates the global monotonic-read property: ordered by
// completion, revisions observed by reads never regress even across session
// boundaries. Writes may still commit out of real-time order relative to
// other clients, so only reads participate.
func checkMonotonic(ops []Op) *Violation {
	var reads []Op
	for _, o := range ops {
		if !o.Write() {
			reads = append(reads, o)
		}
	}
	sort.Slice(reads, func(i, j int) bool { return reads[i].Completed < reads[j].Completed })

	for i := 1; i < len(reads); i++ {
		if reads[i].Revision < reads[i-1].Revision {
			return &Violation{
				Contract: ContractMonotonicSession,
				Message: fmt.Sprintf("session %s observed revision %s after session %s had observed revision %s",
					reads[i].Session, reads[i].Revision, reads[i-1].Session, reads[i-1].Revision),
				Ops: []Op{reads[i-1], reads[i]},
			}
		}
	}
	return nil
}

// overlaps reports whether a read and a write touch a common key range
func overlaps(r, w Op) bool {
	if w.Kind == OpPut {
		return r.Touches(w.Key)
	}
	// interval intersection on [Start, End), empty End meaning unbounded
	return (w.End == "" || r.Start < w.End) && (r.End == "" || w.Start < r.End)
}
