// Package engine executes a resolved module order against a shared profile,
// one module at a time, and assembles the orchestration record describing the
// run. Module failures never abort a run; they become execution records.
package engine
