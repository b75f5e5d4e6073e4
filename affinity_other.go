//go:build !linux

package clcores

// refreshProcessAffinity is a no-op where the affinity syscall isn't
// available.
func refreshProcessAffinity() {}
