package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keel-lang/keelc/pkg/cflat"
	"github.com/keel-lang/keelc/pkg/cflatgen"
	"github.com/keel-lang/keelc/pkg/irfile"
	"github.com/keel-lang/keelc/pkg/rvo"
	"github.com/keel-lang/keelc/pkg/temps"
	"github.com/keel-lang/keelc/pkg/watch"
)

var version = "0.1.0"

// Output and pass options
var (
	outputPath   string
	dumpLowered  bool
	noRVO        bool
	withComments bool
	checkMode    bool
	watchMode    bool
	verbose      bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "keelc [file]",
		Short: "keelc lowers typed keel units to flat C",
		Long: `keelc lowers typed keel units to flat, C-like statements: every
intermediate value lands in a numbered temporary and declarations are
hoisted ahead of their first use. Where sound, the copy at a trailing
return is elided. The result is emitted as deterministic C text.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(errOut)

			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			filename := args[0]

			if watchMode {
				return doWatch(filename, out, errOut)
			}
			return doCompile(filename, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write C output to this path (default: input with .c extension)")
	rootCmd.Flags().BoolVar(&dumpLowered, "dump-lowered", false, "Also write the pre-elision form to <input>.lowered.c")
	rootCmd.Flags().BoolVar(&noRVO, "no-rvo", false, "Disable return value elision")
	rootCmd.Flags().BoolVar(&withComments, "comments", false, "Annotate emitted C with locals and elision markers")
	rootCmd.Flags().BoolVar(&checkMode, "check", false, "Run consistency checks on the lowered form")
	rootCmd.Flags().BoolVar(&watchMode, "watch", false, "Rebuild whenever the unit file changes")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return rootCmd
}

func setupLogging(errOut io.Writer) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(errOut, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// doCompile loads the unit file, runs the lowering pipeline, and writes
// the C output
func doCompile(filename string, out, errOut io.Writer) error {
	unit, err := irfile.Load(filename)
	if err != nil {
		fmt.Fprintf(errOut, "keelc: %v\n", err)
		return err
	}

	stats := &rvo.Stats{}
	cunit, err := cflatgen.TranslateUnit(unit, temps.New(), cflatgen.Options{
		DisableRVO: noRVO,
		Validate:   checkMode,
		Stats:      stats,
	})
	if err != nil {
		fmt.Fprintf(errOut, "keelc: %v\n", err)
		return err
	}
	slog.Debug("return elision", "scanned", stats.Scanned, "elided", stats.Elided)

	output := compiledOutputFilename(filename)
	if err := writeUnitFile(cunit, output, out); err != nil {
		fmt.Fprintf(errOut, "keelc: %v\n", err)
		return err
	}
	fmt.Fprintf(errOut, "keelc: wrote %s\n", output)

	if dumpLowered {
		lowered, err := cflatgen.TranslateUnit(unit, temps.New(), cflatgen.Options{
			DisableRVO: true,
		})
		if err != nil {
			fmt.Fprintf(errOut, "keelc: %v\n", err)
			return err
		}
		loweredOutput := loweredOutputFilename(filename)
		if err := writeUnitFile(lowered, loweredOutput, nil); err != nil {
			fmt.Fprintf(errOut, "keelc: %v\n", err)
			return err
		}
		fmt.Fprintf(errOut, "keelc: wrote %s\n", loweredOutput)
	}

	return nil
}

// doWatch compiles once, then recompiles after each change until
// interrupted. A broken unit file leaves the previous output in place.
func doWatch(filename string, out, errOut io.Writer) error {
	if err := doCompile(filename, out, errOut); err != nil {
		slog.Error("initial build failed", "error", err)
	}

	w, err := watch.New()
	if err != nil {
		fmt.Fprintf(errOut, "keelc: %v\n", err)
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return w.Run(ctx, filename, func() error {
		return doCompile(filename, out, errOut)
	})
}

// writeUnitFile prints the unit to path, echoing to echo when non-nil.
func writeUnitFile(unit *cflat.Unit, path string, echo io.Writer) error {
	outFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer outFile.Close()

	printer := cflat.NewPrinter(outFile)
	printer.Comments = withComments
	printer.PrintUnit(unit)

	if echo != nil {
		printer = cflat.NewPrinter(echo)
		printer.Comments = withComments
		printer.PrintUnit(unit)
	}

	return nil
}

// compiledOutputFilename returns the C output path, honoring -o
func compiledOutputFilename(filename string) string {
	if outputPath != "" {
		return outputPath
	}
	return replaceExt(filename, ".c")
}

// loweredOutputFilename returns the output path for --dump-lowered
func loweredOutputFilename(filename string) string {
	return replaceExt(filename, ".lowered.c")
}

func replaceExt(filename, ext string) string {
	for _, src := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, src) {
			return filename[:len(filename)-len(src)] + ext
		}
	}
	return filename + ext
}
