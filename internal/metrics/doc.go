// Package metrics computes performance statistics from a completed run's
// equity curve and fill log: return and risk ratios, drawdown, and
// per-market trade quality.
package metrics
