// Package mongo archives process outcomes in MongoDB. Build the low-level
// client via clients/mongo and pass it to NewStore; the search subpackage
// serves filtered listings over the same collection.
package mongo
