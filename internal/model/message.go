package model

import (
	"fmt"
	"strings"
)

// Payload is one variant of the message vocabulary exchanged between actors.
// Variants are plain value structs so that a message is fully described by its
// canonical encoding; EncodeTo must be deterministic.
type Payload interface {
	Kind() string
	EncodeTo(b *strings.Builder)
}

// Message is a payload in flight between two actors. It is owned by the
// network model until delivered, at which point the payload passes to the
// recipient's handling step.
type Message struct {
	From    string
	To      string
	SentAt  int64 // logical step at which the message entered the network
	Payload Payload
}

// EncodeTo writes the canonical encoding of the message. SentAt is advisory
// bookkeeping and deliberately excluded: two global states that differ only
// in when equal messages entered the network are equivalent.
func (m Message) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "%s>%s:", m.From, m.To)
	m.Payload.EncodeTo(b)
}

// Encode returns the canonical encoding of the message
func (m Message) Encode() string {
	var b strings.Builder
	m.EncodeTo(&b)
	return b.String()
}

// Entry is a single datastore record returned by Range
type Entry struct {
	Key         string
	Value       string
	ModRevision Revision
}

// Client perturbations and generic key-value operations.

// CreateDeployment asks the datastore to create a replicaset record
type CreateDeployment struct {
	ID    string
	Scale int
	CPU   int64
	Mem   int64
}

func (CreateDeployment) Kind() string { return "create-deployment" }
func (p CreateDeployment) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "create-deployment{id=%s,scale=%d,cpu=%d,mem=%d}", p.ID, p.Scale, p.CPU, p.Mem)
}

// ScaleDeployment changes the desired scale of an existing replicaset record
type ScaleDeployment struct {
	ID string
	N  int
}

func (ScaleDeployment) Kind() string { return "scale-deployment" }
func (p ScaleDeployment) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "scale-deployment{id=%s,n=%d}", p.ID, p.N)
}

// CreatePod asks the datastore to create a pod record in the Pending phase
type CreatePod struct {
	ID      string
	CPU     int64
	Mem     int64
	OwnerID string
}

func (CreatePod) Kind() string { return "create-pod" }
func (p CreatePod) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "create-pod{id=%s,cpu=%d,mem=%d,owner=%s}", p.ID, p.CPU, p.Mem, p.OwnerID)
}

// DeletePod asks the datastore to destroy a pod record
type DeletePod struct {
	ID string
}

func (DeletePod) Kind() string { return "delete-pod" }
func (p DeletePod) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "delete-pod{id=%s}", p.ID)
}

// Put writes a key-value pair; Seq correlates the eventual Response
type Put struct {
	Key   string
	Value string
	Seq   int64
}

func (Put) Kind() string { return "put" }
func (p Put) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "put{key=%s,value=%s,seq=%d}", p.Key, p.Value, p.Seq)
}

// Range reads entries with keys in [Start, End) in key order.
// An empty End means "to the end of the keyspace".
type Range struct {
	Start string
	End   string
	Seq   int64
}

func (Range) Kind() string { return "range" }
func (p Range) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "range{start=%s,end=%s,seq=%d}", p.Start, p.End, p.Seq)
}

// DeleteRange removes all entries with keys in [Start, End)
type DeleteRange struct {
	Start string
	End   string
	Seq   int64
}

func (DeleteRange) Kind() string { return "delete-range" }
func (p DeleteRange) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "delete-range{start=%s,end=%s,seq=%d}", p.Start, p.End, p.Seq)
}

// Control-plane traffic between the datastore, schedulers and controllers.

// SchedulePod asks a scheduler to find a node for a pending pod
type SchedulePod struct {
	PodID string
	CPU   int64
	Mem   int64
}

func (SchedulePod) Kind() string { return "schedule-pod" }
func (p SchedulePod) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "schedule-pod{pod=%s,cpu=%d,mem=%d}", p.PodID, p.CPU, p.Mem)
}

// BindPod records a scheduler's placement decision in the datastore
type BindPod struct {
	PodID  string
	NodeID string
}

func (BindPod) Kind() string { return "bind-pod" }
func (p BindPod) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "bind-pod{pod=%s,node=%s}", p.PodID, p.NodeID)
}

// BindRejected tells a scheduler that its BindPod lost (pod gone or already
// bound by another scheduler instance) so it can release its allocation
type BindRejected struct {
	PodID  string
	NodeID string
}

func (BindRejected) Kind() string { return "bind-rejected" }
func (p BindRejected) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "bind-rejected{pod=%s,node=%s}", p.PodID, p.NodeID)
}

// PodGone tells schedulers that a pod was deleted so capacity can be released
type PodGone struct {
	PodID string
}

func (PodGone) Kind() string { return "pod-gone" }
func (p PodGone) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "pod-gone{pod=%s}", p.PodID)
}

// PodChanged notifies controllers that an owned pod changed phase
type PodChanged struct {
	ReplicaSetID string
	PodID        string
	Phase        PodPhase
}

func (PodChanged) Kind() string { return "pod-changed" }
func (p PodChanged) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "pod-changed{rs=%s,pod=%s,phase=%s}", p.ReplicaSetID, p.PodID, p.Phase)
}

// ReplicaSetChanged notifies controllers that a replicaset record changed
type ReplicaSetChanged struct {
	ReplicaSetID string
	Desired      int
	CPU          int64
	Mem          int64
}

func (ReplicaSetChanged) Kind() string { return "replicaset-changed" }
func (p ReplicaSetChanged) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "replicaset-changed{rs=%s,desired=%d,cpu=%d,mem=%d}", p.ReplicaSetID, p.Desired, p.CPU, p.Mem)
}

// PodStarted is the runtime acknowledgment advancing Scheduled to Running.
// The datastore addresses it to itself through the network so the fault model
// can delay or drop it like any other message.
type PodStarted struct {
	PodID string
}

func (PodStarted) Kind() string { return "pod-started" }
func (p PodStarted) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "pod-started{pod=%s}", p.PodID)
}

// Tick drives one step of a client's workload script
type Tick struct{}

func (Tick) Kind() string { return "tick" }
func (Tick) EncodeTo(b *strings.Builder) {
	b.WriteString("tick{}")
}

// Response answers a datastore request. Op echoes the request kind and Seq its
// sequence number; Rejected marks requests refused without effect.
type Response struct {
	Op       string
	Seq      int64
	Revision Revision
	Entries  []Entry
	Rejected bool
}

func (Response) Kind() string { return "response" }
func (p Response) EncodeTo(b *strings.Builder) {
	fmt.Fprintf(b, "response{op=%s,seq=%d,rev=%s,rejected=%t,entries=[", p.Op, p.Seq, p.Revision, p.Rejected)
	for i, e := range p.Entries {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(b, "%s=%s@%s", e.Key, e.Value, e.ModRevision)
	}
	b.WriteString("]}")
}
