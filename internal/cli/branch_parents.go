package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/kilupskalvis/tfsgit/internal/ancestry"
	"github.com/spf13/cobra"
)

var branchParentsCmd = &cobra.Command{
	Use:   "branch-parents <branch>...",
	Short: "Look up the parent changeset of branches",
	Long: `Look up the parent changeset recorded for each branch in the branch parents file.

The file given with --file (or branch_parents_file in tfsgit.toml) is parsed and
cached in the .git directory, so later runs can omit it.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runBranchParents,
}

var branchParentsFile string

func init() {
	branchParentsCmd.Flags().StringVar(&branchParentsFile, "file", "", "Branch parents file (lines '<branch> = <changeset>')")
}

func runBranchParents(cmd *cobra.Command, args []string) {
	c := initConfigContext()
	defer c.Close()

	file := branchParentsFile
	if file == "" {
		file = c.Config.BranchParentsFile
	}

	parents := ancestry.NewStore(c.Logger)
	if err := parents.Load(file, c.Config.GitPath()); err != nil {
		exitErr(err)
	}
	parents.CopyToCache(file, c.Config.GitPath())

	yellow := color.New(color.FgYellow)
	for _, branch := range args {
		parent, ok := parents.FindBranchParent(branch)
		if !ok {
			fmt.Printf("%s: no parent\n", branch)
			continue
		}
		fmt.Printf("%s: ", branch)
		yellow.Printf("C%d\n", parent)
	}
}
