// Package metrics holds the Prometheus collectors for authentication
// outcomes.
//
// A nil *Recorder is valid and records nothing, so flows can call it
// unconditionally.
package metrics
