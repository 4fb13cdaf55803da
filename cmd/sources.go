package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/harvest-cli/internal/harvest"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured harvest sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sources, err := harvest.LoadSources(cfg.Harvest.SourcesPath)
		if err != nil {
			return err
		}

		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources configured.")
			return nil
		}

		formatSourcesList(os.Stdout, sources)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

// formatSourcesList writes a tabular list of sources to w.
func formatSourcesList(out io.Writer, sources []harvest.Source) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSECTIONS\tMAX_CANDIDATES\tREQUIRE_WEBSITE")
	_, _ = fmt.Fprintln(w, "----\t--------\t--------------\t---------------")

	for _, s := range sources {
		names := make([]string, 0, len(s.Sections))
		for _, sec := range s.Sections {
			names = append(names, sec.Name)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%t\n",
			s.Name,
			strings.Join(names, ","),
			s.MaxCandidates,
			s.RequireWebsite,
		)
	}
	_ = w.Flush()
}
