// Package health provides composable probes and the HTTP handlers behind
// /-/healthy and /-/ready on both listeners.
//
// Probes combine with [All] (AND) and [Any] (OR); [Fixed] is static and
// [CheckFunc] adapts a function. [ShutdownGate] flips readiness off at the
// start of a graceful shutdown.
package health
