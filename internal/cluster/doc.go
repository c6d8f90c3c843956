// Package cluster runs the database server the aql suites query.
//
// A Server renders the server configuration into a host work directory, starts
// one container with that directory mounted, and polls until the server accepts
// client connections. Shutdown removes the container and the work directory.
package cluster
