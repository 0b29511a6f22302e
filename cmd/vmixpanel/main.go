package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot(newCommand(os.Stdin, os.Stdout, os.Stderr))
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot creates the root command. Running it without a subcommand serves
// the control panel.
func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}

	root := createRootCommand(globalFlags)
	bindServeFlags(root, serveFlags)
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return c.Serve(cmd.Context(), withGlobal(*serveFlags, globalFlags))
	}

	root.AddCommand(
		createServeCommand(c, globalFlags),
		createProbeCommand(c, globalFlags),
		createKillPortCommand(c, globalFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "vmixpanel",
		Short: "Local control panel server for vMix overlays",
		Long: `vmixpanel serves the control panel pages and persists overlay data
as JSON files in the data directory.

When the port is already taken at startup you are asked whether to
terminate the running instance (T) or cancel (C).

Examples:
  vmixpanel                          # serve on PORT or 5173
  vmixpanel serve --port=8080
  vmixpanel probe --port=5173
  vmixpanel kill-port --port=5173 --yes`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.EnvFile, "env-file", "", "load KEY=VALUE pairs before reading config (optional)")

	return root
}

func bindServeFlags(cmd *cobra.Command, f *ServeFlags) {
	cmd.Flags().StringVar(&f.Host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVar(&f.Port, "port", 0, "listen port (overrides PORT and server.port)")
	cmd.Flags().StringVar(&f.PublicDir, "public-dir", "", "directory served as static files (overrides server.public_dir)")
	cmd.Flags().BoolVar(&f.NonInteractive, "non-interactive", false, "abort instead of prompting when the port is in use")
}

func withGlobal(f ServeFlags, g *GlobalFlags) ServeFlags {
	f.ConfigPath = g.ConfigPath
	f.EnvFile = g.EnvFile
	return f
}

// createServeCommand creates the serve subcommand
func createServeCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the control panel server",
		Long: `Start the control panel server. The data directory is created and
seeded with default documents when missing.

Examples:
  vmixpanel serve
  vmixpanel serve config.toml
  PORT=8080 vmixpanel serve --non-interactive`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := withGlobal(*serveFlags, globalFlags)
			if len(args) > 0 {
				f.ConfigPath = args[0]
			}
			return c.Serve(cmd.Context(), f)
		},
	}
	bindServeFlags(cmd, serveFlags)
	return cmd
}

// createProbeCommand creates the probe subcommand
func createProbeCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	probeFlags := &ProbeFlags{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Report whether the listening port is free or occupied",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *probeFlags
			f.ConfigPath = globalFlags.ConfigPath
			f.EnvFile = globalFlags.EnvFile
			return c.Probe(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&probeFlags.Host, "host", "", "host to probe (overrides server.host)")
	cmd.Flags().IntVar(&probeFlags.Port, "port", 0, "port to probe (defaults to the configured port)")
	return cmd
}

// createKillPortCommand creates the kill-port subcommand
func createKillPortCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	killFlags := &KillPortFlags{}
	cmd := &cobra.Command{
		Use:   "kill-port",
		Short: "Terminate every process listening on the port",
		Long: `Terminate every process listening on the port, the same way the
server does when the operator answers T at startup.

Examples:
  vmixpanel kill-port                # configured port, asks first
  vmixpanel kill-port --port=5173 --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *killFlags
			f.ConfigPath = globalFlags.ConfigPath
			f.EnvFile = globalFlags.EnvFile
			return c.KillPort(cmd.Context(), f)
		},
	}
	cmd.Flags().IntVar(&killFlags.Port, "port", 0, "port to free (defaults to the configured port)")
	cmd.Flags().BoolVarP(&killFlags.Yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
