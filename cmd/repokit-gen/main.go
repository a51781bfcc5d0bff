/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"fmt"
	"os"

	"github.com/suparena/repokit"
	"github.com/suparena/repokit/processor"
)

func main() {
	// Handle the version flag before the processor registers its own
	// flags.
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			info := repokit.GetVersionInfo()
			fmt.Printf("RepoKit repokit-gen version %s\n", info.Version)
			fmt.Printf("Git commit: %s\n", info.GitCommit)
			fmt.Printf("Build date: %s\n", info.BuildDate)
			fmt.Printf("Go version: %s\n", info.GoVersion)
			os.Exit(0)
		}
	}

	processor.Main()
}
