package cli

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/tfsgit/internal/authors"
	"github.com/kilupskalvis/tfsgit/internal/identity"
	"github.com/kilupskalvis/tfsgit/internal/models"
	"github.com/kilupskalvis/tfsgit/internal/projector"
	"github.com/spf13/cobra"
)

var whoisCmd = &cobra.Command{
	Use:   "whois <committer>...",
	Short: "Show the git identity a TFS committer is projected to",
	Long: `Show the git identity a TFS committer is projected to.

The authors file is consulted first, then the LDAP directory configured in
tfsgit.toml, then the DOMAIN\user convention.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runWhois,
}

func runWhois(cmd *cobra.Command, args []string) {
	c := initConfigContext()
	defer c.Close()
	rem := c.remote()

	var mapping *authors.Mapping
	if c.Config.AuthorsFile != "" {
		m, err := authors.LoadFile(c.Config.AuthorsFile)
		if err != nil {
			exitErr(err)
		}
		mapping = m
	}

	var directory identity.Chain
	if c.Config.LDAP.URL != "" {
		directory = append(directory, identity.NewLDAP(c.Config.LDAP, c.Logger))
	}

	ctx := context.Background()
	for _, committer := range args {
		p := projector.New(&models.Changeset{Committer: committer}, rem, projector.Options{
			Identities: directory,
			Authors:    mapping,
			Logger:     c.Logger,
		})
		entry := p.MakeNewLogEntry(ctx)
		fmt.Printf("%s => %s <%s>\n", committer, entry.AuthorName, entry.AuthorEmail)
	}
}
