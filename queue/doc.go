// Package queue provides the generic concurrent scheduler for operations: a
// dependency-respecting runner that watches readiness signals and invokes
// each operation's entry point exactly once on a fixed worker pool.
package queue
