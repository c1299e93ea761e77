package server

// Metrics is the small counters/gauges surface ServerDocument and
// DocumentManager report through. It's an optional, nil-safe capability:
// callers that don't care about metrics pass nil and get NopMetrics
// instead.
type Metrics interface {
	// SubmitAccepted is called after a transaction is applied, persisted
	// and broadcast successfully.
	SubmitAccepted(documentID string)
	// SubmitRejected is called whenever Submit returns a rejection,
	// tagged with a short reason ("empty", "duplicate", "validation",
	// "storage").
	SubmitRejected(documentID, reason string)
	// WALGapDetected is called when WAL replay finds a non-contiguous
	// version during document load.
	WALGapDetected(documentID string, expected, got int64)
	// DocumentsResident reports the number of ServerDocuments currently
	// resident in a DocumentManager's cache.
	DocumentsResident(n int)
}

// NopMetrics discards every observation. It is the default when a
// ServerDocument or DocumentManager is built without an explicit Metrics.
type NopMetrics struct{}

func (NopMetrics) SubmitAccepted(string)                   {}
func (NopMetrics) SubmitRejected(string, string)            {}
func (NopMetrics) WALGapDetected(string, int64, int64)      {}
func (NopMetrics) DocumentsResident(int)                    {}

var _ Metrics = NopMetrics{}
