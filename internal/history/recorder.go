package history

import (
	"github.com/devrev/clustercheck/internal/model"
)

// OpKind identifies a recorded datastore operation
type OpKind string

const (
	OpPut         OpKind = "put"
	OpRange       OpKind = "range"
	OpDeleteRange OpKind = "delete-range"
)

// Op is one datastore operation observed on an exploration path. Invoked and
// Completed are the logical steps at which the request reached the datastore
// and the response reached the issuer; Completed is -1 while outstanding.
type Op struct {
	Session   string
	Seq       int64
	Kind      OpKind
	Key       string // Put only
	Value     string // Put only
	Start     string // Range / DeleteRange
	End       string // Range / DeleteRange
	Invoked   int64
	Completed int64
	Revision  model.Revision
	Entries   []model.Entry
	Rejected  bool
}

// Write reports whether the operation mutates the store
func (o Op) Write() bool {
	return o.Kind == OpPut || o.Kind == OpDeleteRange
}

// Touches reports whether the operation could read or write the given key
func (o Op) Touches(key string) bool {
	switch o.Kind {
	case OpPut:
		return o.Key == key
	case OpRange, OpDeleteRange:
		return o.Start <= key && (o.End == "" || key < o.End)
	}
	return false
}

type pendingKey struct {
	session string
	seq     int64
}

// Recorder accumulates the operation history of one exploration path.
// The engine clones it whenever the path branches.
type Recorder struct {
	ops     []Op
	pending map[pendingKey]int
}

// NewRecorder creates an empty history recorder
func NewRecorder() *Recorder {
	return &Recorder{pending: make(map[pendingKey]int)}
}

// Clone returns an independent copy for a branching path
func (r *Recorder) Clone() *Recorder {
	c := &Recorder{
		ops:     append([]Op(nil), r.ops...),
		pending: make(map[pendingKey]int, len(r.pending)),
	}
	for k, v := range r.pending {
		c.pending[k] = v
	}
	return c
}

// Invoke records a datastore request reaching the store. Duplicate deliveries
// of the same (session, seq) pair keep the earliest invocation.
func (r *Recorder) Invoke(session string, payload model.Payload, now int64) {
	op := Op{Session: session, Invoked: now, Completed: -1}
	switch p := payload.(type) {
	case model.Put:
		op.Kind, op.Seq, op.Key, op.Value = OpPut, p.Seq, p.Key, p.Value
	case model.Range:
		op.Kind, op.Seq, op.Start, op.End = OpRange, p.Seq, p.Start, p.End
	case model.DeleteRange:
		op.Kind, op.Seq, op.Start, op.End = OpDeleteRange, p.Seq, p.Start, p.End
	default:
		return
	}
	key := pendingKey{session, op.Seq}
	if _, ok := r.pending[key]; ok {
		return
	}
	r.pending[key] = len(r.ops)
	r.ops = append(r.ops, op)
}

// Complete records the response for an outstanding operation reaching its
// issuer. Responses without a matching invocation are ignored, as are
// control-plane responses whose sequence number collides with a key-value
// operation's.
func (r *Recorder) Complete(session string, resp model.Response, now int64) {
	key := pendingKey{session, resp.Seq}
	i, ok := r.pending[key]
	if !ok || string(r.ops[i].Kind) != resp.Op {
		return
	}
	delete(r.pending, key)
	r.ops[i].Completed = now
	r.ops[i].Revision = resp.Revision
	r.ops[i].Entries = resp.Entries
	r.ops[i].Rejected = resp.Rejected
}

// Ops returns the recorded history in invocation order
func (r *Recorder) Ops() []Op {
	return r.ops
}
