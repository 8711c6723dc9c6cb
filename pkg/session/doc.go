/*
Package session keeps one booth per session ID.

A Manager creates booths through a Factory, stores them in a ports.SessionStore and
serializes operations on the same session with ref-counted local locks. When a
DistributedLocker is configured, the same operations also take a cluster-wide lock,
so two replicas never drive one session at once.
*/
package session
