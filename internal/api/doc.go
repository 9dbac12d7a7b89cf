// Package api exposes the REST surface for creating transaction submissions,
// querying their lifecycle state, and inspecting configured chains. It also
// mounts the Prometheus text metrics endpoint.
package api
