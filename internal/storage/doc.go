// Package storage keeps a history of countdown runs.
//
// Only outcomes are recorded (finished or cancelled, with timestamps). A timer
// is never restored from storage after a restart.
package storage
