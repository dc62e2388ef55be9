// Package market maintains the simulation-time market registry.
//
// The registry is seeded from feed metadata before the first event and
// tracks each market's lifecycle as the engine replays the tape:
//
//	unopened -> active -> closed -> resolved
//
// The engine owns the registry and drives all transitions; there is no
// locking because the event loop is single-threaded.
package market
