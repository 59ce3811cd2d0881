// Package logpoint is the client for the Logpoint search API.
//
// Every call is a form POST to {base}/getsearchlogs carrying username,
// secret_key and a JSON requestData document. A search is started with the
// query, repository, time range and limit, and returns a search id; results are
// then retrieved for that id, each response carrying the rows produced since the
// last seen version and a final flag.
//
// The client exposes that exchange as cursor pagination, one HTTP request per
// Search: an empty cursor starts a search and returns a Started page with no
// rows, and every later call passes the NextCursor of the previous response. A cursor is an opaque encoding of the
// search id and last seen version, so repeating a call with the same cursor is
// safe after a failure.
package logpoint
