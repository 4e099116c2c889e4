package metrics

// Global is the process-wide Metrics instance, registered against
// GlobalMetricsRegistry; handlers exposing /metrics gather from that
// registry.
var Global *Metrics

func init() {
	ResetGlobal()
}

// ResetGlobal replaces Global with a fresh Metrics bound to a fresh
// registry, for tests that construct many peers in one process and would
// otherwise register duplicate collectors.
func ResetGlobal() {
	GlobalMetricsRegistry = newRegistry()
	Global = New(GlobalMetricsRegistry)
}
