// +build tools

// package tools imports required tooling so that the dependencies are
// tracked alongside this module and archived in the vendor directory.
package tools

import (
	_ "github.com/golangci/golangci-lint/cmd/golangci-lint"
	_ "golang.org/x/tools/cmd/goimports"
)
