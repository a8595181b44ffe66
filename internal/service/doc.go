// Package service provides lifecycle, admission, and dispatch coordination
// for inference service handles. It is structured into small files by
// concern:
//
//   - registry.go: handle issuing/validation and the public operation surface.
//   - service.go: per-handle state machine (start, stop, destroy).
//   - queue.go: per-input-port FIFO with admission control.
//   - worker.go: execution loop draining queues into the engine session.
//   - dispatch.go: per-handle event dispatcher and callback slot.
//   - info.go: per-handle key/value information store.
//   - types.go: lifecycle states and snapshots.
//   - metrics.go: Prometheus collectors.
//
// External packages should treat this package as the orchestration layer and
// address handles only through Registry methods. A handle token that fails
// validation is rejected with status.InvalidHandle before any handle-owned
// state is touched.
package service
