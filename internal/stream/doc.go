// Package stream provides an in-memory fan-out broadcaster for snapshot
// values. Subscribers register per key and receive every value published for
// that key; publishes are non-blocking and drop for full subscriber buffers,
// which is safe because every value is a full replacement snapshot.
package stream
