package actor

import (
	"fmt"
	"strings"

	"github.com/devrev/clustercheck/internal/model"
)

// Client drives workload perturbations against the datastore. Its script is a
// fixed, bounded sequence of commands; each Tick delivered by the engine emits
// the next one, so the branching the checker explores comes from how client
// steps interleave with deliveries and faults, not from the script itself.
type Client struct {
	id     string
	store  string
	script []model.Payload
}

// NewClient creates a client actor with the given workload script
func NewClient(id, store string, script []model.Payload) *Client {
	return &Client{id: id, store: store, script: append([]model.Payload(nil), script...)}
}

// ID returns the actor id
func (c *Client) ID() string { return c.id }

// ClientState tracks script progress and the highest revision this client has
// observed in responses.
type ClientState struct {
	Next     int
	Seq      int64
	Observed model.Revision
}

// Clone returns an independent copy of the client state
func (st *ClientState) Clone() State {
	c := *st
	return &c
}

// EncodeTo writes the canonical encoding of the client state
func (st *ClientState) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "client{next=%d,seq=%d,observed=%s}", st.Next, st.Seq, st.Observed)
}

// Init returns the initial client state at the start of its script
func (c *Client) Init() State {
	return &ClientState{}
}

// Exhausted reports whether the script has been fully emitted
func (c *Client) Exhausted(state State) bool {
	return state.(*ClientState).Next >= len(c.script)
}

// Choices reports one outcome: the script is deterministic
func (c *Client) Choices(State, model.Message) int { return 1 }

// Handle emits the next script command on Tick and tracks observed revisions
func (c *Client) Handle(state State, msg model.Message, _ int, now int64) (State, []model.Message) {
	st := state.Clone().(*ClientState)

	switch p := msg.Payload.(type) {
	case model.Tick:
		if st.Next >= len(c.script) {
			return st, nil
		}
		payload := c.script[st.Next]
		st.Next++

		// stamp key-value operations with this client's next sequence
		// number so responses can be correlated
		switch op := payload.(type) {
		case model.Put:
			op.Seq = st.Seq
			st.Seq++
			payload = op
		case model.Range:
			op.Seq = st.Seq
			st.Seq++
			payload = op
		case model.DeleteRange:
			op.Seq = st.Seq
			st.Seq++
			payload = op
		}
		return st, []model.Message{{From: c.id, To: c.store, SentAt: now, Payload: payload}}

	case model.Response:
		if !p.Rejected && p.Revision > st.Observed {
			st.Observed = p.Revision
		}
		return st, nil
	}
	return st, nil
}
