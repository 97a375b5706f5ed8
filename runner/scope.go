package runner

import (
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Scope returns a copy of the tree in which every unit is named by its full
// path from the root, e.g. "group/sub/test". Tests are shared with the
// input; groups are copied so the input is left untouched.
func Scope(units []types.Named[types.TestUnit]) []types.Named[types.TestUnit] {
	return scope("", units)
}

func scope(parent string, units []types.Named[types.TestUnit]) []types.Named[types.TestUnit] {
	scoped := make([]types.Named[types.TestUnit], len(units))
	for i, u := range units {
		name := types.BuildHierarchyPath(parent, u.Name)
		if g, ok := u.Value.(*types.Group); ok && g != nil {
			scoped[i] = types.NewNamed[types.TestUnit](name, &types.Group{
				Concurrency: g.Concurrency,
				Tests:       scope(name, g.Tests),
			})
			continue
		}
		scoped[i] = types.NewNamed(name, u.Value)
	}
	return scoped
}

// FindDuplicate returns the first name, in depth-first order, carried by
// more than one unit of an already scoped tree.
func FindDuplicate(units []types.Named[types.TestUnit]) (string, bool) {
	return findDuplicate(units, make(map[string]struct{}))
}

func findDuplicate(units []types.Named[types.TestUnit], seen map[string]struct{}) (string, bool) {
	for _, u := range units {
		if _, ok := seen[u.Name]; ok {
			return u.Name, true
		}
		seen[u.Name] = struct{}{}
		if g, ok := u.Value.(*types.Group); ok && g != nil {
			if name, dup := findDuplicate(g.Tests, seen); dup {
				return name, true
			}
		}
	}
	return "", false
}
