/*
Package queue buffers writes issued while disconnected and replays them
strictly in order once connectivity is restored.

The queue moves through Idle → Queued → Flushing → Idle. During a flush
the head operation is applied first; on success it is permanently removed
and the next head is attempted, on failure the flush stops immediately
with the failed operation still at the head (retry counter incremented).
No later-enqueued operation is ever applied before an earlier one that
has not yet succeeded, and the queue is never reordered or parallelized.

An optional sqlite-backed Journal makes the buffer durable across
process restarts.
*/
package queue
