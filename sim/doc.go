// Package sim provides the discrete-event kernel for the retrofit workshop simulator.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - engine.go: virtual clock, event loop, horizon handling and shutdown
//   - process.go: long-running routines that suspend on delays, resources and queues
//   - resource.go, store.go, signal.go: the capacity and handoff primitives
//
// # Scheduling Model
//
// Every routine runs on its own goroutine, but the Engine hands a single
// execution slot back and forth: exactly one routine executes at a time and
// the Engine waits for it to suspend before popping the next event. Events at
// the same tick fire in the order they were scheduled (FIFO by a per-engine
// sequence number), which together with the seeded PartitionedRNG makes two
// runs of the same scenario produce identical event logs.
//
// # Architecture
//
// Domain packages build on the kernel:
//   - sim/track: length-based track occupancy and track selection
//   - sim/fleet: workshop stations and the locomotive pool
//   - sim/registry: authoritative wagon and locomotive state
//   - sim/services: batch formation, coupling times, route lookup
//   - sim/workflow: the five coordinators and the Run entry point
//   - sim/trace: append-only event log consumed by analytics, summary and exporters
//   - sim/metrics: Prometheus view of finished runs
//   - sim/scenario: YAML scenario loading and validation
package sim
