// Package model defines the canonical data types shared across the gateway:
// the normalized Quote, per-source metadata, resolved identifiers, history
// points, and the update events fanned out to subscribers.
package model
