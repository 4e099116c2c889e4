package main

import (
	"fmt"
	"os"

	"github.com/localfirst/ldb/cmd"
)

func main() {
	if err := cmd.RootCommand.Execute(); err != nil {
		if ee, ok := err.(*cmd.ExitError); ok {
			os.Exit(ee.Exit)
		}
		fmt.Println(err)
		os.Exit(1)
	}
}
