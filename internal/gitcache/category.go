package gitcache

import "time"

// Category classifies cached query output by what kind of repository data
// it describes. The set is closed; each category carries a fixed default
// TTL that grows with how slowly that data changes.
type Category int

const (
	// CategoryConfig is repository configuration output.
	CategoryConfig Category = iota
	// CategoryRemotes is remote listing output.
	CategoryRemotes
	// CategoryBranches is branch listing output.
	CategoryBranches
	// CategoryTags is tag listing output.
	CategoryTags
	// CategoryStatus is working tree status output.
	CategoryStatus
	// CategoryFlowConfig is git-flow configuration output.
	CategoryFlowConfig
	// CategoryBranchRelations is ahead/behind and upstream tracking output.
	CategoryBranchRelations
)

// Categories lists every category, for iteration.
var Categories = [...]Category{
	CategoryConfig,
	CategoryRemotes,
	CategoryBranches,
	CategoryTags,
	CategoryStatus,
	CategoryFlowConfig,
	CategoryBranchRelations,
}

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConfig:
		return "config"
	case CategoryRemotes:
		return "remotes"
	case CategoryBranches:
		return "branches"
	case CategoryTags:
		return "tags"
	case CategoryStatus:
		return "status"
	case CategoryFlowConfig:
		return "flow-config"
	case CategoryBranchRelations:
		return "branch-relations"
	default:
		return "unknown"
	}
}

// TTL returns the default freshness window for the category.
func (c Category) TTL() time.Duration {
	switch c {
	case CategoryStatus:
		return 30 * time.Second
	case CategoryBranchRelations:
		return time.Minute
	case CategoryBranches:
		return 2 * time.Minute
	case CategoryTags:
		return 5 * time.Minute
	case CategoryRemotes:
		return 10 * time.Minute
	case CategoryConfig:
		return 10 * time.Minute
	case CategoryFlowConfig:
		return 15 * time.Minute
	default:
		// Unknown categories get the most volatile window.
		return 30 * time.Second
	}
}
