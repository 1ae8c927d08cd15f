// Package game runs matches.
//
// A Coordinator owns one match: its players, the task catalog built from the
// map, the phase and the task bar. Its state is confined to a single
// goroutine; everything else talks to it by posting closures to its inbox.
//
// Each connected player has a Session. Sessions answer the player's
// requests (requestTask, reportBody) on the player's channel and start
// pairings on the catalog's tasks. When a pairing completes, the session
// tells the coordinator, which persists the player's progress and
// broadcasts the new task bar to everyone.
//
// A Manager creates matches with short join codes and removes them when the
// last player has left.
package game
