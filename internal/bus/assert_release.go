//go:build release

package bus

// Release builds count and report violations through the hook and keep going.
const assertSingleConsumer = false
