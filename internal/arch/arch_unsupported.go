//go:build !arm64

package arch

// Stub for builds without the arm64 tag. It compiles: on such a build
// internal/arch is an empty package whose init calls the no-op below, so
// the build does not stop here. Only cmd/kernel, which is arm64-only,
// imports this package. Grounded on the teacher's arch_unsupported.go / platform_unsupported.go
// compile-error-stub idiom.

func init() {
	compileError_ARCH_NOT_SUPPORTED()
}

func compileError_ARCH_NOT_SUPPORTED() {
	// No-op: defined so this file compiles on non-arm64 hosts; the name
	// marks an unsupported-architecture build in a stack trace or listing.
}
