// Package eventlog records a run as append-only newline-delimited JSON.
//
// Each line is {"ts", "kind", "payload"} with kind one of trade, fill,
// open, close, resolve, snapshot. The writer batches lines through a
// growable buffer and flushes every BatchSize lines and on Stop; there is
// no time-based flush. The reader tolerates
// unknown fields and unknown kinds for forward compatibility.
//
// Running the same feed, config, and strategy twice produces
// byte-identical logs.
package eventlog
