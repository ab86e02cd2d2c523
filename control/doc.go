// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for running channels.
//
// Provides concurrent-safe primitives:
//   - A metrics registry with gauges and counters
//   - Probe registration and state export for debugging
package control
