package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/rr-block/internal/block/gateways/apiclient"
	"github.com/haukened/rr-block/internal/block/repos/parsers"
)

const appName = "rr-blockctl"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cli struct {
	apiURL  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   appName,
		Short: "Manage the sites blocked by rr-block",
		Long: `rr-blockctl talks to the rr-block daemon's management API to list,
add, toggle and remove blocking rules, and to check whether a URL would be blocked.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.apiURL, "api", envOr("BLOCK_API_URL", apiclient.DefaultBaseURL), "management API base URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		&cobra.Command{
			Use:     "ls",
			Aliases: []string{"list"},
			Short:   "List blocking rules",
			Args:    cobra.NoArgs,
			RunE:    c.runList,
		},
		&cobra.Command{
			Use:   "add URL",
			Short: "Block a site",
			Args:  cobra.ExactArgs(1),
			RunE:  c.runAdd,
		},
		&cobra.Command{
			Use:   "toggle ID",
			Short: "Flip a rule between blocking and allowed",
			Args:  cobra.ExactArgs(1),
			RunE:  c.runToggle,
		},
		&cobra.Command{
			Use:     "rm ID",
			Aliases: []string{"remove"},
			Short:   "Delete a rule",
			Args:    cobra.ExactArgs(1),
			RunE:    c.runRemove,
		},
		&cobra.Command{
			Use:   "check URL",
			Short: "Report whether a request to URL would be blocked",
			Args:  cobra.ExactArgs(1),
			RunE:  c.runCheck,
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show filter and store statistics",
			Args:  cobra.NoArgs,
			RunE:  c.runStats,
		},
	)

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Block every host in a list file (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runImport,
	}
	importCmd.Flags().String("format", string(parsers.FormatPlain), "list format: plain or hosts")
	root.AddCommand(importCmd)

	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *cli) client(cmd *cobra.Command) (*apiclient.Client, context.Context, context.CancelFunc, error) {
	client, err := apiclient.New(c.apiURL, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	return client, ctx, cancel, nil
}

func (c *cli) runList(cmd *cobra.Command, _ []string) error {
	client, ctx, cancel, err := c.client(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	list, err := client.List(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No blocked sites.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tURL")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, state(r.IsBlocked), r.URL)
	}
	return tw.Flush()
}

func (c *cli) runAdd(cmd *cobra.Command, args []string) error {
	client, ctx, cancel, err := c.client(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	rule, err := client.Add(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s (%s)\n", rule.URL, rule.ID)
	return nil
}

func (c *cli) runToggle(cmd *cobra.Command, args []string) error {
	client, ctx, cancel, err := c.client(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	rule, err := client.Toggle(ctx, args[0])
	if apiclient.IsNotFound(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: no rule with id %q\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", rule.URL, state(rule.IsBlocked))
	return nil
}

func (c *cli) runRemove(cmd *cobra.Command, args []string) error {
	client, ctx, cancel, err := c.client(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	err = client.Remove(ctx, args[0])
	if apiclient.IsNotFound(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: no rule with id %q\n", args[0])
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}

func (c *cli) runImport(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("format")
	format, err := parsers.ParseFormat(raw)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	source := "stdin"
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open list: %w", err)
		}
		defer f.Close()
		in, source = f, args[0]
	}

	client, ctx, cancel, err := c.client(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	res, err := client.Import(ctx, in, format, source)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new rules, skipped %d\n", res.Added, res.Skipped)
	return nil
}

func (c *cli) runCheck(cmd *cobra.Command, args []string) error {
	client, ctx, cancel, err := c.client(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	d, err := client.Check(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch {
	case d.Blocked:
		fmt.Fprintf(out, "blocked: %s (rule %s)\n", d.Host, d.MatchedRule)
	case d.Host == "":
		fmt.Fprintf(out, "allowed: %q is not an absolute URL\n", args[0])
	default:
		fmt.Fprintf(out, "allowed: %s\n", d.Host)
	}
	return nil
}

func (c *cli) runStats(cmd *cobra.Command, _ []string) error {
	client, ctx, cancel, err := c.client(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	st, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ready\t%t\n", st.Filter.Ready)
	fmt.Fprintf(tw, "snapshot version\t%d\n", st.Filter.Version)
	fmt.Fprintf(tw, "rules\t%d\n", st.Filter.Rules)
	fmt.Fprintf(tw, "blocked hosts\t%d\n", st.Filter.BlockedHosts)
	fmt.Fprintf(tw, "cache\t%d/%d (hits %d, misses %d, evictions %d)\n",
		st.Filter.Cache.Size, st.Filter.Cache.Capacity, st.Filter.Cache.Hits, st.Filter.Cache.Misses, st.Filter.Cache.Evictions)
	if st.Store != nil {
		updated := "never"
		if st.Store.UpdatedUnix > 0 {
			updated = time.Unix(st.Store.UpdatedUnix, 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "store writes\t%d\n", st.Store.Version)
		fmt.Fprintf(tw, "store updated\t%s\n", updated)
	}
	return tw.Flush()
}

func state(blocked bool) string {
	if blocked {
		return "blocked"
	}
	return "allowed"
}
