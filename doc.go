// Package lockbox implements a backend-agnostic handle over a durable,
// transactional state container. A Handle fixes the vocabulary of operations
// against some ACID-guaranteeing engine (scheduled update, synchronous
// update, query, checkpoint, close) without exposing which engine is behind
// it, and provides a tag-checked downcast for recovering the richer,
// backend-specific handle when the caller knows the backend family.
//
// Typical usage looks like:
//   - Define a Model that describes your state: a constructor, Appliers that
//     fold update events into it, and Queriers that read from it
//   - Open a Handle through one backend factory (OpenMemory, OpenBolt,
//     OpenRedis, OpenPostgres)
//   - Submit updates with ScheduleUpdate or Update, read with Query, and
//     persist consistent snapshots with Checkpoint
//   - Use the cold variants when event types are only known as encoded bytes
//
// Updates submitted to a Handle are applied strictly in arrival order, and
// an Update call returns only after the event's effects are durable. The
// examples/ directory contains a runnable counter program that exercises the
// API in a small domain.
package lockbox
