// Package shutdown stops the party server in phases.
//
// Components register a Handler under a phase. Shutdown runs phases in
// ascending order; handlers within a phase run concurrently and share the
// shutdown deadline:
//
//	PhaseListener   stop accepting HTTP requests and close player connections
//	PhaseMatches    stop every match and release in-flight pairings
//	PhaseBackends   close the message bus and progress store
//	PhaseTelemetry  flush match events and traces
//
// A failing handler does not stop later phases; every failure is reported
// in the Result.
package shutdown
