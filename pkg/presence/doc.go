// Package presence mirrors the live sessions of a server into a shared
// store so that other processes can see who is connected where.
//
// A Mirror is a registry observer. Each inserted session is written as a
// record keyed by its trace ID and added to the server's member set; each
// removal deletes both. Records carry a TTL that the Mirror refreshes while
// running, so a crashed process leaves no stale entries behind.
package presence
