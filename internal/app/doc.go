// Package app contains the application use cases: generating a validation
// directory, submitting it, and driving its grid tasks. It is decoupled from
// any specific entrypoint like a CLI.
package app
