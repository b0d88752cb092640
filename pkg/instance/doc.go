/*
Package instance guarantees that at most one driver advances a given saga.

It pairs a process-local, reference-counted mutex per saga id with an optional
ports.DistributedLocker so that replicas sharing a store do not drive the same
saga concurrently.
*/
package instance
