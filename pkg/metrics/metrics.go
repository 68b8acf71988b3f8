// Package metrics holds the Prometheus collectors shared by the bistro processes.
package metrics

const namespace = "bistro"

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
