package model

import "strconv"

// Revision is the monotonically increasing counter assigned to each committed
// datastore write. The zero revision denotes "nothing observed yet".
type Revision int64

// Next returns the revision assigned to the following commit
func (r Revision) Next() Revision {
	return r + 1
}

// String renders the revision for traces and reports
func (r Revision) String() string {
	return strconv.FormatInt(int64(r), 10)
}
