// Package redis is the shared market data store.
//
// There are 3 parts to this package:
//
//  1. Pool - a process wide, bounded set of server connections
//  2. Subscriptions - a registry of subscription name to channel
//  3. Store - reads and writes of market data on top of the pool
//
// # Pool
//
// All stores in a process may share one Pool. The pool never holds more than
// its configured maximum of live connections. A connection is only reused by
// the execution context that created it (see WithExecContext); when the pool
// is full and the caller has nothing idle of its own, another context's idle
// connection is closed to make room. Callers wait up to the acquire timeout
// and then get a PoolExhaustedError, which is transient.
//
// # Subscriptions
//
// The registry lives in the hash "<namespace>:subscriptions". Every add or
// remove runs as a single server side script that also publishes a JSON
// SubscriptionUpdate on the update channel, so a listener that sees the
// notification also sees the registry change.
//
// # Store
//
// Reads and writes differ in how they fail:
//
//   - Reads (Get, GetHash, GetValue, Subscriptions) never return an error.
//     If the value cannot be read it is reported as absent and the cause is
//     logged. GetHash distinguishes a missing hash (empty map, true) from an
//     unreadable one (nil, false).
//   - Writes (Put, PutHash, PutValue, Subscribe, Unsubscribe) return nil
//     only when the server confirmed the write. Anything else is an
//     *IntegrityError. A write already sent is not abandoned when the
//     caller's context is cancelled.
//
// Every operation is retried according to the configured retry.Policy.
// Transient failures are retried with backoff; see IsTransient.
package redis
