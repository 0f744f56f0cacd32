// Package registry is the client for an NMOS IS-04 Query API.
//
// It covers the three registry interactions the discovery engine needs:
//
//   - FetchAll: read a whole collection, walking Link-header pagination
//   - CreateSubscription: ask for a websocket push channel on one resource path
//   - ParseGrain: decode a push-channel message into per-record changes
//
// Pagination follows the registry's Link header. When the first response
// names a rel="last" page, the walk restarts there and follows rel="prev"
// links back to the oldest page, prepending each page so the result is in
// oldest-to-newest order. Any failure part-way returns an error; partial
// data is never returned as if complete.
package registry
