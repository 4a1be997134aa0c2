package main

import (
	"readycheck/cmd"
)

// version is the application version, set at build time via ldflags.
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
