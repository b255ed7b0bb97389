package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewkit/crew/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the crew version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}
