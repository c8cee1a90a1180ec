// Package resolver expands a module selection into its dependency closure and
// orders it so dependencies run first. Cycles never fail resolution: the
// back-edge is dropped and reported as a diagnostic.
package resolver
