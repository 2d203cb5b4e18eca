package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilupskalvis/tfsgit/internal/config"
	"github.com/kilupskalvis/tfsgit/internal/remote"
	"github.com/kilupskalvis/tfsgit/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Configure the current git repository to follow a TFS path",
	Long: `Configure the current git repository to follow a TFS path.
This writes tfsgit.toml into the .git directory and creates the projection log.`,
	Run: runInit,
}

var (
	initURL            string
	initRepositoryPath string
	initRemoteID       string
	initCutPath        string
	initIgnoreRegex    string
)

func init() {
	initCmd.Flags().StringVar(&initURL, "url", "", "TFS collection URL")
	initCmd.Flags().StringVar(&initRepositoryPath, "repository-path", "", "TFS path to follow, e.g. $/Project/Trunk")
	initCmd.Flags().StringVar(&initRemoteID, "remote-id", config.DefaultRemoteID, "Name of the remote")
	initCmd.Flags().StringVar(&initCutPath, "cut-path", "", "Path prefix to strip from every file")
	initCmd.Flags().StringVar(&initIgnoreRegex, "ignore-regex", "", "Regex of paths to leave out")
	initCmd.MarkFlagRequired("url")
	initCmd.MarkFlagRequired("repository-path")
}

func runInit(cmd *cobra.Command, args []string) {
	cwd, err := os.Getwd()
	if err != nil {
		exitError("%v", err)
	}

	cfg, err := config.Initialize(cwd, initURL, initRepositoryPath)
	if err != nil {
		exitError("failed to initialize config: %v", err)
	}
	cfg.RemoteID = initRemoteID
	cfg.CutPath = initCutPath
	cfg.IgnoreRegex = initIgnoreRegex

	if _, err := remote.New(cfg.RemoteOptions()); err != nil {
		// Cleanup on failure
		os.Remove(filepath.Join(cfg.GitPath(), config.ConfigFile))
		exitErr(err)
	}
	if err := cfg.Save(); err != nil {
		exitError("failed to save config: %v", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.Initialize(); err != nil {
		exitError("failed to initialize store: %v", err)
	}

	fmt.Printf("Initialized tfsgit in %s\n", cfg.GitPath())
	fmt.Printf("Following %s on %s as remote '%s'\n", initRepositoryPath, initURL, initRemoteID)
}
