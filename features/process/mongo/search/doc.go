// Package search provides a Mongo-backed listing repository over the process
// result archive. It reads the collection the archive client writes, adding
// filters and cursor pagination for dashboards and operator tooling.
package search
