// Package store defines the persistence contract for accepted recipes and the duplicate
// guard the pipeline consults before fetching. Implementations live in the baserow,
// postgres and memory subpackages; this package must not import database drivers or
// concrete clients.
package store
