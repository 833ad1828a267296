// Package lock implements exclusive and advisory holds on named resources
// for collaborative editing sessions.
//
// A resource is identified by an opaque string (a workspace file path, a
// scene actor ID). At most one lock exists per resource at any instant.
// Soft locks are advisory: other users may still acquire access but are
// handed a warning. Hard locks are exclusive: conflicting acquires fail.
//
// Expired locks are evicted lazily on the next read rather than by a
// background sweep. Contended access is serialized through a FIFO request
// queue; releasing a lock notifies the earliest queued requester without
// transferring the lock.
package lock
