// Package main provides the entry point for the markrag CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/markrag/cmd/markrag/cmd"
	merrors "github.com/Aman-CERP/markrag/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, merrors.FormatForCLI(err))
		os.Exit(1)
	}
}
