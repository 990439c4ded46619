package memory

import (
	"context"
	"strings"
)

// BranchDirectory validates branch ids against a fixed list from config.
type BranchDirectory struct {
	branches map[string]struct{}
}

func NewBranchDirectory(ids []string) *BranchDirectory {
	d := &BranchDirectory{branches: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			d.branches[id] = struct{}{}
		}
	}
	return d
}

// Valid reports whether branchID is known. An empty directory accepts any id.
func (d *BranchDirectory) Valid(_ context.Context, branchID string) (bool, error) {
	if len(d.branches) == 0 {
		return true, nil
	}
	_, ok := d.branches[branchID]
	return ok, nil
}
