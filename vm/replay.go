package vm

import "fmt"

// ReplayEntry is one host call recorded during execution. A second node
// re-executing the same transaction replays the identical call sequence;
// any divergence in method/args/result fails verification, and the pipeline
// marks the containing block INVALID rather than trusting whichever node
// answered first.
type ReplayEntry struct {
	Method string
	Args   []string
	Result string
}

// replayRecorder either records host calls (verifying == false, the leader
// path) or verifies them against a previously recorded log (the
// follower/verification path, verifying == true).
type replayRecorder struct {
	log       []ReplayEntry
	verifying bool
	index     int
}

func newReplayRecorder(expected []ReplayEntry) *replayRecorder {
	if expected != nil {
		return &replayRecorder{log: expected, verifying: true}
	}
	return &replayRecorder{}
}

func (r *replayRecorder) record(method string, args []string, result string) error {
	if !r.verifying {
		r.log = append(r.log, ReplayEntry{Method: method, Args: args, Result: result})
		return nil
	}
	if r.index >= len(r.log) {
		return fmt.Errorf("vm: replay log exhausted at call %d (%s)", r.index, method)
	}
	want := r.log[r.index]
	r.index++
	if want.Method != method || !stringSliceEqual(want.Args, args) || want.Result != result {
		return fmt.Errorf("vm: replay mismatch at call %d: want %+v, got %s(%v)=%s", r.index-1, want, method, args, result)
	}
	return nil
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
