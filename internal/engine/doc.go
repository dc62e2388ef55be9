// Package engine drives a backtest run.
//
// The event loop merges market lifecycle events (derived from feed
// metadata) with the historical trade tape in strict time order. Among
// events sharing a timestamp: open < trade < close < resolve; within a
// class, feed order is preserved.
//
// Per trade, in order: the slippage EMA observes the print, the broker
// attempts fills against resting orders, fills are applied to the
// portfolio with OnFill hooks, a snapshot is taken if a sampling boundary
// was crossed, and finally the strategy's OnTrade fires. Orders placed in
// callbacks rest immediately but cannot fill against the event that
// triggered them.
//
// The loop is single-threaded; all mutable state is owned by the engine
// and a run is reproducible byte-for-byte from (feed, config, strategy).
package engine
