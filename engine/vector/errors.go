package vector

import "fmt"

// RetrievalError wraps a failed index operation: unreachable transport,
// missing collection, or a malformed response. The client never retries;
// retry policy belongs to callers.
type RetrievalError struct {
	Collection string
	Op         string
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("vector: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func retrievalErr(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	return &RetrievalError{Collection: collection, Op: op, Err: err}
}
