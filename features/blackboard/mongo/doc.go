// Package mongo persists agent process state in MongoDB. Use clients/mongo to
// build the low-level client, NewStore to save and load blackboard snapshots,
// and NewRecorder to journal every bus event of a process as it happens.
package mongo
