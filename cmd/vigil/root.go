package main

import (
	"context"

	"github.com/spf13/cobra"

	"vigil/cmd/vigil/scan"
	"vigil/cmd/vigil/server"
)

func Execute() error {
	var rootCmd = &cobra.Command{
		Use:   "vigil",
		Short: "Orchestrates containerised security scanners",
		Long:  `Vigil runs security scanning modules against a target, stores their findings and streams live progress`,
	}

	rootCmd.AddCommand(server.NewServerCommand())
	rootCmd.AddCommand(scan.NewScanCommand())
	rootCmd.AddCommand(scan.NewModulesCommand())
	return rootCmd.ExecuteContext(context.Background())
}
