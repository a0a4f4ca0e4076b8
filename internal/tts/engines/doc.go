// Package engines contains the synthesis backends. Each one drives a Python
// runner script through a fresh interpreter process per request and
// implements the tts.Engine interface from the parent package.
package engines
