package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/uplink-sim/server/internal/world"
)

func newSeedCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Validate a world seed and print a summary",
		Long:  "seed loads a YAML world seed (the built-in one when --file is empty), validates it and lists the hosts it defines.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := world.LoadSeed(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gateway %s, %d tools installed\n", seed.Gateway.Address, len(seed.Gateway.Software))
			for _, h := range seed.Hosts {
				fmt.Fprintf(out, "  %-16s %-40s %d screens, %d files\n", h.Address, h.Name, len(h.Screens), len(h.Files))
			}
			fmt.Fprintf(out, "%d headlines, %d employers\n", len(seed.Headlines), len(seed.Employers))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "path to a YAML world seed")
	return cmd
}
