// Package cli turns command-line arguments into an experiment invocation:
// it parses flags and `with` tokens, wires logging, sinks and run records,
// then runs the main function or prints the resolved configuration.
package cli
