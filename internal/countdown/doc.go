// Package countdown implements the tick-driven countdown timer.
//
// A Timer owns the remaining-seconds counter. Once started, its Trigger fires
// every TickInterval; each firing decrements the counter and reports the new
// value (OnTimerUpdate) or completion (OnTimerFinished) to the Listener. Stop
// cancels a running timer and reports OnTimerCancelled exactly once.
//
// State machine:
//
//	Idle --Start--> Running --tick (remaining > 0)--> Running
//	                Running --tick (remaining <= 0)--> Finished
//	                Running --Stop--> Cancelled
//
// Finished and Cancelled end a run. SetDuration returns a stopped timer to Idle.
package countdown
