// Package cli builds the tkalgrid command tree, validates user input and
// handles process-level concerns like exit codes. It translates flags into
// the application's configuration and hands over to package app.
package cli
