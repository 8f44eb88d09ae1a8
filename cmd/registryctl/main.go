// registryctl runs the schema registry core against the configured storage
// and prints results as JSON.
//
//	registryctl [--config FILE] [--env-file FILE] <command> [flags]
//
// With the default configuration storage is in memory and lasts for a single
// invocation; point storage.type at postgres for a persistent registry.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/Aleph-Alpha/schema-registry/v1/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		configPath string
		envFile    string
	)
	fs := pflag.NewFlagSet("registryctl", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	fs.StringVarP(&configPath, "config", "c", os.Getenv("REGISTRY_CONFIG"), "YAML configuration file")
	fs.StringVar(&envFile, "env-file", ".env", "environment file loaded before the configuration")
	help := fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		return reportError(stderr, usageError("%v", err))
	}
	if *help || fs.NArg() == 0 {
		printUsage(stderr, fs)
		if *help {
			return exitOK
		}
		return exitUsage
	}

	cmd, ok := findCommand(fs.Arg(0))
	if !ok {
		return reportError(stderr, usageError("unknown command %q", fs.Arg(0)))
	}
	act, err := cmd.parse(fs.Args()[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return reportError(stderr, err)
	}

	if err := config.LoadEnvFiles(envFile); err != nil {
		return reportError(stderr, err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return reportError(stderr, err)
	}

	var result interface{}
	err = withApp(ctx, cfg, func(ctx context.Context, e env) error {
		var err error
		result, err = act(ctx, e)
		return err
	})
	if err != nil {
		return reportError(stderr, err)
	}
	if err := writeJSON(stdout, result); err != nil {
		fmt.Fprintf(stderr, "failed to write output: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: registryctl [global flags] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	_ = tw.Flush()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprint(w, fs.FlagUsages())
}
