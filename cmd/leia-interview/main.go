package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "leia-interview: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "leia-interview",
		Short:         "Join a LEIA realtime interview from the terminal",
		Long:          "leia-interview connects to a LEIA gateway, negotiates a WebRTC audio session with the realtime interviewer, and prints the live transcript.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("gateway", "http://localhost:8080", "gateway base URL")
	rootCmd.PersistentFlags().String("session", "", "session id (generated when empty)")

	v.SetEnvPrefix("LEIA_INTERVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlag("gateway", rootCmd.PersistentFlags().Lookup("gateway"))
	_ = v.BindPFlag("session", rootCmd.PersistentFlags().Lookup("session"))

	rootCmd.AddCommand(
		newJoinCmd(v),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the leia-interview version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
