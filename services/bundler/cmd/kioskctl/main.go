package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kioskd/services/bundler"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kioskctl",
		Short:         "Utility for managing kioskd configuration bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newBundlesCommand())
	return cmd
}

func newBundlesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundles",
		Short: "Bundle build and import operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBundlesBuildCommand())
	cmd.AddCommand(newBundlesImportCommand())
	return cmd
}

func newBundlesBuildCommand() *cobra.Command {
	var (
		configsDir string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Create a signed bundle from a directory of machine configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			signer, err := bundler.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = bundler.Build(ctx, bundler.BuildConfig{
				ConfigsDir: configsDir,
				Output:     output,
				Signer:     signer,
				Stdout:     os.Stdout,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&configsDir, "configs-dir", "", "Directory containing machine-configuration JSON files")
	cmd.Flags().StringVar(&output, "output", "", "Destination bundle file (tar.zst)")
	_ = cmd.MarkFlagRequired("configs-dir")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newBundlesImportCommand() *cobra.Command {
	var (
		bundleFile string
		engineURL  string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Verify a signed bundle and import its configurations into the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			signer, err := bundler.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = bundler.Import(ctx, bundler.ImportConfig{
				BundlePath: bundleFile,
				EngineURL:  engineURL,
				Signer:     signer,
				Stdout:     os.Stdout,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&bundleFile, "file", "", "Path to the bundle tar.zst")
	cmd.Flags().StringVar(&engineURL, "engine", "", "Base URL of the engine ops API (e.g. https://engine.example.com)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("engine")
	return cmd
}
