// Package status tracks the connection state of each controller subsystem.
//
// The Tracker is registered as a controller handler. It keeps an in-memory
// view for the HTTP API and persists every change to the subsystem_status
// table so counters survive restarts.
package status
