package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var apiFlag string
	var guestFlag bool

	ctx := newCommandContext(&apiFlag, &guestFlag)

	rootCmd := &cobra.Command{
		Use:           "anipink",
		Short:         "Track anime episodes and story arcs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", "", "Relay base URL (default from ANIPINK_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&guestFlag, "guest", false, "Use the local guest list even when signed in")

	for _, cmd := range newAuthCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range newListCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newProfileCommand(ctx))
	for _, cmd := range newAdviceCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}

	return rootCmd
}
