package planner

import (
	"reflect"

	"neo4j-graphql/internal/selection"
)

// unifyConditioned handles a response key selected with sub-selections under several type
// conditions. For every concrete type of declared that more than one of those selections
// applies to, a node merging them is inserted ahead of the first one, so values of that type
// are resolved and assembled with the union of the sub-selections. A selection whose every
// concrete type is served by a merged node is dropped.
func (p *planner) unifyConditioned(declared string, nodes []*selection.Node) ([]*selection.Node, error) {
	groups := make(map[string][]*selection.Node)
	var keys []string
	for _, n := range nodes {
		if len(n.Children) == 0 {
			continue
		}
		key := n.ResponseKey()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], n)
	}

	before := make(map[*selection.Node][]*selection.Node)
	applies := make(map[*selection.Node]int)
	covered := make(map[*selection.Node]int)
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		for _, concrete := range p.model.Labels(declared) {
			var applicable []*selection.Node
			for _, n := range group {
				if n.TypeCondition == "" || p.model.Conforms(concrete, n.TypeCondition) {
					applicable = append(applicable, n)
					applies[n]++
				}
			}
			if len(applicable) < 2 {
				continue
			}
			merged, err := selection.Union(concrete, applicable...)
			if err != nil {
				return nil, err
			}
			// A tree planned before already holds the merged node first.
			if reflect.DeepEqual(merged, applicable[0]) {
				applicable = applicable[1:]
			} else {
				before[applicable[0]] = append(before[applicable[0]], merged)
			}
			for _, n := range applicable {
				covered[n]++
			}
		}
	}
	if len(before) == 0 && len(covered) == 0 {
		return nodes, nil
	}

	out := make([]*selection.Node, 0, len(nodes)+len(before))
	for _, n := range nodes {
		out = append(out, before[n]...)
		if applies[n] == 0 || covered[n] < applies[n] {
			out = append(out, n)
		}
	}
	return out, nil
}
