//go:build !nodecode

package features

const decodeEnabled = true
