// Package execs runs external commands described by configuration.
//
// prodmatch uses it for the "exec" oracle backend, where a local program
// receives the prompt on stdin and writes its verdict to stdout. Commands
// run with a minimal environment; variables from the caller are only
// passed through when listed under env or envFrom.
package execs
