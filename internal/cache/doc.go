// Package cache stores synthesized audio on disk so that repeated requests
// for the same text, engine and options skip the subprocess. Entries are
// zstd-compressed and evicted least recently used first.
package cache
