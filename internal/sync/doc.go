// Package sync implements the synchronization pipeline: the job lifecycle
// calls against the remote persistence service (initiate, upload, finalize,
// abort), chunked parallel uploads with exponential-factor retry, adaptive
// payload shrinking when the server rejects a batch for size, and the
// side-channel event publishing queue.
//
// The HTTP transport is a pooled *http.Client with MaxIdleConnsPerHost and a
// configurable timeout, built on NewRequestWithContext + Do + body-read. The
// event publishing queue holds a long-lived socket.io connection open for
// the life of a run, with a background goroutine draining a channel into it
// rather than reconnecting per event.
package sync
