package recommend

import "time"

// Cache is an optional response cache port. The composition layer may wire
// an implementation in or leave it nil; the service behaves identically
// either way, modulo latency. Only final enriched results are cached, keyed
// by (mode, entity id, parameter set), never intermediate fan-out state.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}
