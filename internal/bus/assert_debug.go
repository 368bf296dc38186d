//go:build !release

package bus

// Debug builds panic on a second consumer identity.
const assertSingleConsumer = true
