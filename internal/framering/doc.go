// Package framering implements the frame slot store and its bounded
// distribution ring.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// The store is a fixed arena of pre-allocated, fixed-size byte buffers,
// allocated once at startup and reused forever. Frames travel between the
// producer and consumers as slot handles, never as copies. Each slot carries
// a generation counter bumped every time the slot is reacquired for writing;
// a handle whose generation no longer matches is stale and must be discarded.
//
// One producer writes through AcquireWriteSlot/Publish. Any number of
// consumers subscribe a Cursor and read through Next, each at its own pace:
// a slow consumer never blocks a fast one. When the producer finds no free
// slot it evicts the oldest published frame (drop-oldest); a cursor that was
// still behind observes the eviction as an explicit Skipped count on its
// next delivery, not as a silent reordering.
//
// A slot pinned by an in-flight read is never evicted, so the bytes behind a
// FrameRef are stable until Release. If every slot is pinned the producer
// waits at most its timeout and gives up with ErrBackpressure, keeping the
// producer's blocking time bounded.
package framering
