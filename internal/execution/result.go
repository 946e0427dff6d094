package execution

import (
	"fmt"
	"sync"

	"neo4j-graphql/internal/planner"
)

// Item is one value produced by a fragment for one parent. Entity items carry the node's
// identity, labels, and selected properties; scalar items carry Value. An entity item with an
// empty ID is a null node.
type Item struct {
	Parent string
	ID     string
	Labels []string
	Props  map[string]any
	Value  any
}

// IsNode reports whether the item is a non-null node.
func (it Item) IsNode() bool {
	return it.ID != ""
}

type fragmentValues struct {
	byParent map[string][]Item
	parents  []string
	// seen holds the identity keys already stored per parent.
	seen map[string]map[string]struct{}
}

// Result holds every fragment's values, keyed by fragment and parent identity. Root fragments
// store their values under the empty parent.
type Result struct {
	Plan *planner.Plan

	mu     sync.RWMutex
	values map[int]*fragmentValues
}

func newResult(plan *planner.Plan) *Result {
	return &Result{Plan: plan, values: make(map[int]*fragmentValues, len(plan.Fragments))}
}

// Items returns the values fragment id produced for parent, in result order.
func (r *Result) Items(id int, parent string) []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fv, ok := r.values[id]
	if !ok {
		return nil
	}
	return fv.byParent[parent]
}

// begin marks parents as evaluated so an empty answer is distinguishable from a skipped one.
func (r *Result) begin(id int, parents []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fv := r.fragment(id)
	for _, p := range parents {
		if _, ok := fv.byParent[p]; !ok {
			fv.byParent[p] = []Item{}
			fv.parents = append(fv.parents, p)
		}
	}
}

// store appends items under their parents. A node reached twice from the same parent is one
// value. Fragments with a post limit hold distinct-value collections: repeated scalar values are
// dropped too, and the limit applies to what remains.
func (r *Result) store(f *planner.Fragment, items []Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fv := r.fragment(f.ID)
	distinct := f.PostLimit != nil
	scalars := distinct && !f.Field.IsEntity()
	for _, it := range items {
		if _, ok := fv.byParent[it.Parent]; !ok {
			fv.parents = append(fv.parents, it.Parent)
		}
		if key, ok := it.identity(scalars); ok {
			seen := fv.seen[it.Parent]
			if seen == nil {
				seen = make(map[string]struct{})
				fv.seen[it.Parent] = seen
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		fv.byParent[it.Parent] = append(fv.byParent[it.Parent], it)
	}
	if distinct {
		limit := *f.PostLimit
		for parent, list := range fv.byParent {
			if len(list) > limit {
				fv.byParent[parent] = list[:limit]
			}
		}
	}
}

// identity returns the key two equal values share. Nodes are keyed by ID and scalar values,
// when requested, by type and rendering. Null nodes have no identity.
func (it Item) identity(scalars bool) (string, bool) {
	switch {
	case it.IsNode():
		return "node:" + it.ID, true
	case scalars:
		return fmt.Sprintf("value:%T:%v", it.Value, it.Value), true
	}
	return "", false
}

// nodes returns the distinct non-null nodes fragment id produced, in first-seen order.
func (r *Result) nodes(id int) []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fv, ok := r.values[id]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []Item
	for _, parent := range fv.parents {
		for _, it := range fv.byParent[parent] {
			if !it.IsNode() {
				continue
			}
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			out = append(out, it)
		}
	}
	return out
}

func (r *Result) fragment(id int) *fragmentValues {
	fv, ok := r.values[id]
	if !ok {
		fv = &fragmentValues{
			byParent: make(map[string][]Item),
			seen:     make(map[string]map[string]struct{}),
		}
		r.values[id] = fv
	}
	return fv
}
