// Package api is the gateway's external surface: the REST endpoints for
// quotes, history, overview and movers, the refresh trigger, and the
// WebSocket subscription endpoint feeding off the fan-out hub.
package api
