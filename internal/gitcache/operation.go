package gitcache

// Operation identifies a mutating repository operation. Each operation maps
// to the fixed set of categories whose cached output it makes stale. The
// set is closed; the mapping is immutable.
type Operation int

const (
	// OpCheckout switches the checked-out branch or commit.
	OpCheckout Operation = iota
	// OpBranchCreate creates a local branch.
	OpBranchCreate
	// OpBranchDelete deletes a local branch.
	OpBranchDelete
	// OpMerge merges another ref into the current branch.
	OpMerge
	// OpRebase rebases the current branch.
	OpRebase
	// OpCommit records a commit on the current branch.
	OpCommit
	// OpPush uploads local refs to a remote.
	OpPush
	// OpPull fetches and integrates remote changes.
	OpPull
	// OpFetch downloads remote refs without integrating.
	OpFetch
	// OpConfigChange modifies repository configuration.
	OpConfigChange
	// OpFlowStart starts a git-flow branch.
	OpFlowStart
	// OpFlowFinish finishes a git-flow branch.
	OpFlowFinish
	// OpTagCreate creates a tag.
	OpTagCreate
	// OpTagDelete deletes a tag.
	OpTagDelete
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpCheckout:
		return "checkout"
	case OpBranchCreate:
		return "branch-create"
	case OpBranchDelete:
		return "branch-delete"
	case OpMerge:
		return "merge"
	case OpRebase:
		return "rebase"
	case OpCommit:
		return "commit"
	case OpPush:
		return "push"
	case OpPull:
		return "pull"
	case OpFetch:
		return "fetch"
	case OpConfigChange:
		return "config-change"
	case OpFlowStart:
		return "flow-start"
	case OpFlowFinish:
		return "flow-finish"
	case OpTagCreate:
		return "tag-create"
	case OpTagDelete:
		return "tag-delete"
	default:
		return "unknown"
	}
}

// Invalidates returns the categories made stale by the operation.
func (o Operation) Invalidates() []Category {
	switch o {
	case OpCheckout:
		return []Category{CategoryBranches, CategoryStatus, CategoryBranchRelations}
	case OpBranchCreate:
		return []Category{CategoryBranches}
	case OpBranchDelete:
		return []Category{CategoryBranches, CategoryBranchRelations}
	case OpMerge, OpRebase, OpPull:
		return []Category{CategoryBranches, CategoryStatus, CategoryBranchRelations}
	case OpCommit:
		return []Category{CategoryStatus}
	case OpPush:
		return []Category{CategoryBranchRelations}
	case OpFetch:
		return []Category{CategoryBranches, CategoryBranchRelations}
	case OpConfigChange:
		return []Category{CategoryConfig, CategoryFlowConfig, CategoryRemotes}
	case OpFlowStart:
		return []Category{CategoryBranches, CategoryStatus, CategoryFlowConfig}
	case OpFlowFinish:
		return []Category{CategoryBranches, CategoryStatus, CategoryTags, CategoryBranchRelations}
	case OpTagCreate, OpTagDelete:
		return []Category{CategoryTags}
	default:
		return nil
	}
}
