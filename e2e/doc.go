// Package e2e holds the end-to-end aql suites. They need Docker and a built aql
// binary and only compile with the e2e build tag:
//
//	go test -tags e2e -p 1 ./e2e/...
package e2e
