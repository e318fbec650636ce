package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/courier"
)

func newProbeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Connect and report the server's capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stop, err := a.clientConfig(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			res, err := courier.Probe(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "host: %s\n", res.Host)
			fmt.Fprintf(out, "secure: %t\n", res.Secure)
			fmt.Fprintf(out, "capabilities: %s\n", res.Capabilities)

			keywords := make([]string, 0, len(res.Capabilities.Extensions))
			for k := range res.Capabilities.Extensions {
				keywords = append(keywords, k)
			}
			sort.Strings(keywords)
			for _, k := range keywords {
				if p := res.Capabilities.Extensions[k]; p != "" {
					fmt.Fprintf(out, "  %s %s\n", k, p)
				} else {
					fmt.Fprintf(out, "  %s\n", k)
				}
			}
			return nil
		},
	}
}
