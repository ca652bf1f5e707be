//go:build arm64 && !selftest

package main

// runSelftest is a no-op in the default build; the `selftest` build tag
// (selftest_hook.go) swaps in the real call so a hardware bring-up image
// pays the extra boot time only when it was built to ask for it.
func runSelftest() {}
