package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/hist/pkg/object"
)

// OpKind identifies which resumable operation owns the transient state.
type OpKind string

const (
	OpNone       OpKind = ""
	OpMerge      OpKind = "merge"
	OpRebase     OpKind = "rebase"
	OpCherryPick OpKind = "cherry-pick"
)

// MergeState is the persisted record of a merge suspended on conflicts.
type MergeState struct {
	OursHash   object.Hash `json:"ours_hash"`
	TheirsHash object.Hash `json:"theirs_hash"`
	TheirsName string      `json:"theirs_name"`
	BaseHash   object.Hash `json:"base_hash,omitempty"`
}

// RebaseState is the persisted record of a rebase suspended on conflicts.
type RebaseState struct {
	BranchRef      string        `json:"branch_ref"`          // "refs/heads/<name>", empty when detached
	OrigBranchHash object.Hash   `json:"orig_branch_hash"`    // branch tip before the rebase
	UpstreamHash   object.Hash   `json:"upstream_hash"`       // new base the commits replay onto
	RunningHead    object.Hash   `json:"running_head"`        // tip of the replayed chain so far
	CurrentHash    object.Hash   `json:"current_hash"`        // commit whose replay conflicted
	Remaining      []object.Hash `json:"remaining,omitempty"` // still to replay, oldest first
	Replayed       []object.Hash `json:"replayed,omitempty"`  // replacement commits created so far, oldest first
}

// CherryPickState is the persisted record of a cherry-pick suspended on
// conflicts.
type CherryPickState struct {
	TargetHash object.Hash `json:"target_hash"` // commit being picked
	OursHash   object.Hash `json:"ours_hash"`   // HEAD when the pick started
}

// OpState is the tagged transient-state document stored in
// .hist/state.json. Exactly one of Merge/Rebase/CherryPick is set when
// Op is not OpNone. Its presence restricts the command surface to the
// operations needed to resolve or abort.
type OpState struct {
	Op         OpKind           `json:"op"`
	Merge      *MergeState      `json:"merge,omitempty"`
	Rebase     *RebaseState     `json:"rebase,omitempty"`
	CherryPick *CherryPickState `json:"cherry_pick,omitempty"`
}

func (r *Repo) statePath() string {
	return filepath.Join(r.HistDir, "state.json")
}

// readOpState loads the transient state; a missing file means no
// operation is in progress.
func (r *Repo) readOpState() (*OpState, error) {
	data, err := os.ReadFile(r.statePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &OpState{Op: OpNone}, nil
		}
		return nil, fmt.Errorf("read op state: %w", err)
	}

	var st OpState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("read op state: unmarshal: %w", err)
	}
	return &st, nil
}

// writeOpState persists the transient state atomically.
func (r *Repo) writeOpState(st *OpState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("write op state: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(r.HistDir, ".state-tmp-*")
	if err != nil {
		return fmt.Errorf("write op state: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write op state: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write op state: close: %w", err)
	}

	if err := os.Rename(tmpName, r.statePath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write op state: rename: %w", err)
	}
	return nil
}

// clearOpState removes the transient state file. Already-absent state is
// not an error.
func (r *Repo) clearOpState() error {
	if err := os.Remove(r.statePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear op state: %w", err)
	}
	return nil
}

// requireNoOperation fails with ErrOperationInProgress when a merge,
// rebase, or cherry-pick is suspended. op names the rejected command
// for the message.
func (r *Repo) requireNoOperation(op string) error {
	st, err := r.readOpState()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if st.Op != OpNone {
		return fmt.Errorf("%s: %s in progress: %w", op, st.Op, ErrOperationInProgress)
	}
	return nil
}

// CurrentOperation reports the suspended operation kind, OpNone when the
// repository is quiescent.
func (r *Repo) CurrentOperation() (OpKind, error) {
	st, err := r.readOpState()
	if err != nil {
		return OpNone, err
	}
	return st.Op, nil
}
