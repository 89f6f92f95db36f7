package task

import "sort"

// ResourceType names one bounded resource a task may need while executing.
// Each type maps to exactly one resource pool owned by the executor.
type ResourceType string

// The fixed set of constrained resources in the enrichment pipeline.
const (
	ResourceAPICalls            ResourceType = "api_calls"
	ResourceProcessingSlots     ResourceType = "processing_slots"
	ResourceDBConnections       ResourceType = "db_connections"
	ResourceVectorDBConnections ResourceType = "vector_db_connections"
	ResourceLLMConnections      ResourceType = "llm_connections"
)

// AllResourceTypes lists every known resource type in canonical order.
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceAPICalls,
		ResourceDBConnections,
		ResourceLLMConnections,
		ResourceProcessingSlots,
		ResourceVectorDBConnections,
	}
}

// CanonicalOrder returns a copy of the given resource types sorted by name
// with duplicates removed. Acquiring resources in this single total order is
// the executor's deadlock-avoidance discipline: no two tasks can hold
// resources in conflicting orders.
func CanonicalOrder(resources []ResourceType) []ResourceType {
	seen := make(map[ResourceType]struct{}, len(resources))
	ordered := make([]ResourceType, 0, len(resources))
	for _, r := range resources {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	return ordered
}
