// Command bannerscan is a concurrent TCP port scanner with banner grabbing.
package main

import "github.com/anstrom/bannerscan/cmd/cli"

// Set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
