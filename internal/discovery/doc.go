// Package discovery keeps a local mirror of an NMOS registry.
//
// Discover bootstraps the five resource collections (nodes, devices,
// senders, receivers, flows) through the paginated Query API and replaces
// the Store wholesale. It then opens one push subscription per collection
// and applies incoming grains with Reconcile.
//
// # Subscription lifecycle
//
// Each collection runs independently:
//
//	Idle -> Subscribing -> Connected -> (Closed | Failed)
//
// A lost channel goes back to Subscribing after a backoff delay that starts
// at 1s and grows by 1.5x up to 30s. Reaching Connected resets the delay.
// After 10 consecutive failed retries the subscription moves to Failed and
// a "failed" connection status is emitted. Stop and a new Discover move
// every subscription to Closed.
//
// # Notifications
//
// Resource updates and connection statuses are queued to a single
// dispatcher goroutine which calls the configured notify.Sink. Updates for
// one collection are delivered in the order the grains were applied.
package discovery
