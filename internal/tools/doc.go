// Package tools provides subprocess helpers shared by the harness packages.
//
// Ownership boundary:
// - command execution with captured output
// - exit code normalisation (process code, 127 for exec failures, 1 otherwise)
package tools
