// Package lifecycle defines how long-running apps report their state to the
// hosting process, and provides an in-process Manager and a shutdown hook
// list for hosts that do not bring their own.
package lifecycle
