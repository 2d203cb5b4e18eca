// Command tfsgit bridges TFS version control history into git.
package main

import (
	"os"

	"github.com/kilupskalvis/tfsgit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
