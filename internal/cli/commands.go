package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-supply-cache/entitycache"
	"github.com/goliatone/go-supply-cache/invalidation"
	"github.com/goliatone/go-supply-cache/pkg/di"
	"github.com/spf13/cobra"
)

func newKeysCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [prefix]",
		Short: "List store keys, optionally filtered by prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return opts.withContainer(func(c *di.Container) error {
				keys, err := c.Store().Keys(cmd.Context(), prefix)
				if err != nil {
					return err
				}
				sort.Strings(keys)
				for _, key := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			})
		},
	}
}

func newStaleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stale",
		Short: "List stale markers and when they were set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(func(c *di.Container) error {
				markers := c.StaleMarkers().List(cmd.Context())
				keys := make([]string, 0, len(markers))
				for key := range markers {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, markers[key].Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func newRulesCmd(opts *options) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect invalidation rules",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the active invalidation rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(func(c *di.Container) error {
				printRules(cmd.OutOrStdout(), c.Engine().Rules())
				return nil
			})
		},
	}

	matchCmd := &cobra.Command{
		Use:   "match [table] [operation]",
		Short: "Show the rules a mutation would apply, in priority order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			event := invalidation.MutationEvent{
				Table:     args[0],
				Operation: invalidation.Operation(strings.ToUpper(args[1])),
			}
			return opts.withContainer(func(c *di.Container) error {
				matched := c.Engine().MatchRules(event)
				if len(matched) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no rules match")
					return nil
				}
				printRules(cmd.OutOrStdout(), matched)
				return nil
			})
		},
	}

	rulesCmd.AddCommand(listCmd, matchCmd)
	return rulesCmd
}

func printRules(w io.Writer, rules []invalidation.Rule) {
	for _, rule := range rules {
		targets := make([]string, 0, len(rule.Targets))
		for _, target := range rule.Targets {
			targets = append(targets, target.String())
		}
		fmt.Fprintf(w, "%s\t%s %s\t%s/%s\t%s\n",
			rule.ID,
			rule.Trigger.Table,
			rule.Trigger.Operation,
			rule.Strategy,
			rule.Priority,
			strings.Join(targets, ","),
		)
	}
}

func newClearCmd(opts *options) *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached data; the offline queue is kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(func(c *di.Container) error {
				if pattern != "" {
					n := c.QueryCache().ClearMatching(cmd.Context(), pattern)
					fmt.Fprintf(cmd.OutOrStdout(), "cleared %d queries matching %q\n", n, pattern)
					return nil
				}
				c.ClearAll(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), "cleared all caches")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "Only clear queries matching this glob pattern")
	return cmd
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove query cache entries older than the sweep age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(func(c *di.Container) error {
				n := c.QueryCache().Sweep(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "swept %d queries\n", n)
				return nil
			})
		},
	}
}

func newQueueCmd(opts *options) *cobra.Command {
	var drop bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List mutations waiting for replay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(func(c *di.Container) error {
				if drop {
					c.EntityCache().ClearQueue(cmd.Context())
					fmt.Fprintln(cmd.OutOrStdout(), "offline queue cleared")
					return nil
				}
				printQueue(cmd.OutOrStdout(), c.EntityCache().Pending(cmd.Context()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&drop, "clear", false, "Drop every queued mutation")
	return cmd
}

func newDeadLettersCmd(opts *options) *cobra.Command {
	var drop bool

	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List mutations that exhausted their replay attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(func(c *di.Container) error {
				if drop {
					c.EntityCache().ClearDeadLetters(cmd.Context())
					fmt.Fprintln(cmd.OutOrStdout(), "dead letters cleared")
					return nil
				}
				printQueue(cmd.OutOrStdout(), c.EntityCache().DeadLetters(cmd.Context()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&drop, "clear", false, "Drop every dead letter")
	return cmd
}

func printQueue(w io.Writer, items []entitycache.QueueItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "empty")
		return
	}
	for _, item := range items {
		line := fmt.Sprintf("%s\t%s\t%s\tretries=%d",
			item.ID,
			item.Operation,
			time.UnixMilli(item.Timestamp).UTC().Format(time.RFC3339),
			item.RetryCount,
		)
		if item.LastError != "" {
			line += "\terror=" + item.LastError
		}
		fmt.Fprintln(w, line)
	}
}
