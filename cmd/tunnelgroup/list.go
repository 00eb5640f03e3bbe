package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured tunnels without starting them",
	Long: `Load the tunnel config exactly as run would, including migration of a
legacy file, and print every tunnel with the file that holds it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		g, err := newGroup(settings, deps{})
		if err != nil {
			return err
		}
		defer releaseSlot()

		if err := g.LoadControllers(); err != nil {
			return err
		}
		defer g.UnloadControllers()

		entries := g.Entries()
		if len(entries) == 0 {
			fmt.Println("No tunnels configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tSTART ON LOAD\tCONFIG FILE")
		for _, e := range entries {
			c := e.Controller
			fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", c.Name(), c.Type(), c.StartOnLoad(), e.ConfigFile)
		}
		return w.Flush()
	},
}
