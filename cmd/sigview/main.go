// Package main provides the sigview process entrypoint.
package main

import (
	"os"

	"github.com/rbright/sigview/internal/app"
)

// main hands argv to the runner; signal handling is installed by the runner
// once the window exists.
func main() {
	os.Exit(app.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
