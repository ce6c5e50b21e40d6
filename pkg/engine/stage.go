package engine

// Stage is a step of the processing pipeline. Stages are passed in order;
// any of them may end in StageFailed.
type Stage int

const (
	StageNotStarted Stage = iota
	StageRootBound
	StageLockChecked
	StageSeeded
	StageTextFiltered
	StageDirFiltered
	StageOverridesApplied
	StageSymlinkClosed
	StageResourceFiltered
	StageDissected
	StageReported
	StageApplied
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageNotStarted:       "not-started",
	StageRootBound:        "root-bound",
	StageLockChecked:      "lock-checked",
	StageSeeded:           "seeded",
	StageTextFiltered:     "text-filtered",
	StageDirFiltered:      "dir-filtered",
	StageOverridesApplied: "overrides-applied",
	StageSymlinkClosed:    "symlink-closed",
	StageResourceFiltered: "resource-filtered",
	StageDissected:        "dissected",
	StageReported:         "reported",
	StageApplied:          "applied",
	StageDone:             "done",
	StageFailed:           "failed",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "unknown"
}
