//go:build arm64 && selftest

package main

import (
	"github.com/iansmith/nanokernel/internal/klog"
	"github.com/iansmith/nanokernel/internal/selftest"
	"github.com/iansmith/nanokernel/internal/trap"
)

// runSelftest runs internal/selftest.Run right after boot and before the
// shell starts (internal/selftest's documented call site) and halts with a
// panic banner naming the first failing check, so a hardware bring-up
// image reports a bad build immediately instead of handing control to a
// shell running on top of a broken allocator or scheduler.
func runSelftest() {
	for _, r := range selftest.Run() {
		if r.Passed() {
			klog.Infof("selftest passed", klog.Str("check", r.Name))
			continue
		}
		klog.Errf("selftest failed", klog.Str("check", r.Name), klog.Str("err", r.Err.Error()))
		trap.Panic("selftest failed: "+r.Name, trap.Info{})
	}
}
