package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func logCmd(f *rootFlags) *cobra.Command {
	var limitFlag int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show connection history for an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(f)
			if err != nil {
				return err
			}
			defer a.Close()
			agent, err := a.agent(f)
			if err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.ListLog(agent.ID, limitFlag)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no session events")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				detail := ""
				if e.Detail != nil {
					detail = *e.Detail
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Event, detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 50, "number of entries")
	return cmd
}
