// Package strategy defines the callback surface a trading strategy
// implements and the context it trades through.
//
// Hooks fire in a fixed order within one event; see the Strategy
// interface. Orders placed during a callback rest immediately but cannot
// fill against the event that triggered the callback.
//
// Embed Base to implement only the hooks a strategy cares about.
package strategy
