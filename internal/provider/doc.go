// Package provider defines the capability interface every market-data
// adapter implements, and the error taxonomy those adapters surface
// (not found, rate limited, transient, validation).
//
// Callers stay polymorphic over the Adapter interface; nothing outside a
// provider package branches on the concrete adapter type.
package provider
