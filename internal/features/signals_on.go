//go:build !nosignals

package features

const signalsEnabled = true
