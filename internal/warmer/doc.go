// Package warmer defines the core types, boundary interfaces and error
// taxonomy shared by the cache-warming engine: the URL collector, the
// presence checker and the warming orchestrator.
package warmer
