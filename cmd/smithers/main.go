// Smithers drives a declarative agent-program tree against external LLM CLI
// processes: it renders the tree, dispatches pending nodes through a
// middleware pipeline, persists results and an audit trail to SQLite, and
// re-renders until a stop marker or budget ends the run.
package main

import (
	"os"
	"runtime/debug"

	"github.com/dotcommander/smithers/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
