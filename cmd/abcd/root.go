package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "abcd",
		Short: "Distributed ABC-SMC inference engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPurgeCmd())
	root.AddCommand(newCheckNumParticlesCmd())

	return root
}
