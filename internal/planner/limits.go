package planner

import "neo4j-graphql/internal/gqlerr"

const (
	// DefaultListLimit applies to root lists that do not pass options.limit.
	DefaultListLimit = 100
	// DefaultBatchMaxParents caps parent identities per dependent statement.
	DefaultBatchMaxParents = 500
)

// PlanLimits defines cost limits applied during planning.
type PlanLimits struct {
	MaxDepth     int
	MaxFragments int
}

// PlanCost captures the planned cost of a query.
type PlanCost struct {
	Depth     int
	Fragments int
}

func validateLimits(cost PlanCost, limits PlanLimits) error {
	if limits.MaxDepth > 0 && cost.Depth > limits.MaxDepth {
		return gqlerr.New(gqlerr.KindArgument, "query exceeds maximum depth of %d (depth: %d)", limits.MaxDepth, cost.Depth)
	}
	if limits.MaxFragments > 0 && cost.Fragments > limits.MaxFragments {
		return gqlerr.New(gqlerr.KindArgument, "query exceeds maximum fragment count of %d (planned: %d)", limits.MaxFragments, cost.Fragments)
	}
	return nil
}
