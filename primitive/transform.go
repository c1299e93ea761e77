package primitive

import "docengine/operation"

// TransformOutcome is the closed set of results transforming a client
// operation against a concurrent server operation can produce.
type TransformOutcome int

const (
	// Transformed means the (possibly rewritten) operation in Op
	// should be applied by the client.
	Transformed TransformOutcome = iota
	// Noop means the client operation should be dropped silently: the
	// server operation made it meaningless (e.g. it targeted a node
	// the server already removed).
	Noop
	// Conflict means the client operation cannot be reconciled and
	// should be surfaced as an error.
	Conflict
)

// TransformResult is the outcome of Primitive.TransformOperation.
type TransformResult struct {
	Outcome TransformOutcome
	Op      operation.Operation
	Reason  string
}

// TransformedResult builds a Transformed result carrying op.
func TransformedResult(op operation.Operation) TransformResult {
	return TransformResult{Outcome: Transformed, Op: op}
}

// NoopResult builds a Noop result.
func NoopResult() TransformResult {
	return TransformResult{Outcome: Noop}
}

// ConflictResult builds a Conflict result carrying reason.
func ConflictResult(reason string) TransformResult {
	return TransformResult{Outcome: Conflict, Reason: reason}
}

// withResultPath prefixes a transformed result's operation path with
// token, restoring the path a container primitive removed before
// delegating to a child. Noop and Conflict results pass through
// unchanged since they carry no path-bearing operation a caller applies.
func withResultPath(result TransformResult, token string, prefix operation.Path) TransformResult {
	if result.Outcome != Transformed {
		return result
	}
	result.Op = withPath(result.Op, appendTail(prefix.Append(token), result.Op.Path))
	return result
}

// appendTail appends every token of tail to p, in order.
func appendTail(p operation.Path, tail operation.Path) operation.Path {
	out := p
	for _, t := range tail.ToTokens() {
		out = out.Append(t)
	}
	return out
}
