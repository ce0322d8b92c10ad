//go:build nodecode

package features

const decodeEnabled = false
