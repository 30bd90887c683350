package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/seamly/stitch/internal/covfile"
	"github.com/seamly/stitch/internal/repo"
	"github.com/spf13/cobra"
)

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Repository management commands",
	}

	cmd.AddCommand(newRepoListCmd())
	cmd.AddCommand(newRepoFilesCmd())
	return cmd
}

func newRepoListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stitch.yaml", "path to Stitch config file")
	return cmd
}

func runRepoList(cmd *cobra.Command, configPath string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	repos, err := repo.List(gormDB)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(repos) == 0 {
		fmt.Fprintln(out, "No repositories tracked yet. Run `stitch analyze <url>` first.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREPOSITORY\tBRANCH\tLAST ANALYZED")
	for _, r := range repos {
		label := r.URL
		if r.Owner != "" && r.Name != "" {
			label = r.Owner + "/" + r.Name
		}
		analyzed := "never"
		if r.LastAnalyzedAt != nil {
			analyzed = r.LastAnalyzedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, truncate(label, 48), r.Branch, analyzed)
	}
	w.Flush()
	return nil
}

func newRepoFilesCmd() *cobra.Command {
	var (
		configPath string
		status     string
		below      float64
	)

	cmd := &cobra.Command{
		Use:   "files <repo-id>",
		Short: "List a repository's coverage files",
		Long:  "Lists the repository's analyzed source files, worst covered first. Use the IDs with `stitch improve`.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := covfile.ListFilters{
				RepositoryID: args[0],
				Status:       status,
			}
			if cmd.Flags().Changed("below") {
				filters.Below = &below
			}
			return runRepoFiles(cmd, configPath, filters)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "stitch.yaml", "path to Stitch config file")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, improving, improved)")
	cmd.Flags().Float64Var(&below, "below", 0, "only files under this coverage percentage")
	return cmd
}

func runRepoFiles(cmd *cobra.Command, configPath string, filters covfile.ListFilters) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	files, err := covfile.List(gormDB, filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintln(out, "No coverage files found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPATH\tCOVERAGE\tSTATUS")
	for _, f := range files {
		path := f.Path
		if f.ProjectDir != "" {
			path = f.ProjectDir + "/" + f.Path
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%s\n", f.ID, truncate(path, 56), f.Percentage, f.Status)
	}
	w.Flush()
	return nil
}
