package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bigbag/fwpipe/internal/config"
	"github.com/bigbag/fwpipe/internal/detect"
	"github.com/bigbag/fwpipe/internal/merge"
	"github.com/bigbag/fwpipe/internal/monitor"
	"github.com/bigbag/fwpipe/internal/pipeline"
	"github.com/bigbag/fwpipe/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag     string
	baudFlag     int
	timeoutFlag  int
	buildDirFlag string
	outputFlag   string
	verboseFlag  bool
	mergedFlag   bool
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "fwpipe",
		Short: "Build, flash and monitor ESP32-P4 firmware",
		Long: `fwpipe drives the firmware build-and-deploy loop for ESP32-P4 boards:
compile with the PlatformIO runner, merge bootloader, partition table
and application into one flashable image, upload it, and stream the
device console over serial.

Run without a subcommand to build, upload and monitor in sequence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
		RunE: runAll,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	pf.IntVarP(&baudFlag, "baud", "b", 0, "Baud rate")
	pf.IntVarP(&timeoutFlag, "timeout", "t", 0, "Monitor timeout in seconds (<=0 runs until interrupted)")
	pf.StringVar(&buildDirFlag, "build-dir", "", "Build products directory")
	pf.StringVarP(&outputFlag, "output", "o", "", "Merged image file name")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Compile the firmware and merge the release image",
		RunE:  runBuild,
	}

	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge build products into one flashable image",
		Long: `Merge the bootloader, partition table and application from the build
directory into a single image:

  - Bootloader at 0x2000
  - Partition table at 0x8000
  - Application at 0x10000

Gaps are padded with 0xFF and the bootloader magic byte is checked.`,
		RunE: runMerge,
	}

	uploadCmd := &cobra.Command{
		Use:   "upload",
		Short: "Flash the firmware to the device",
		RunE:  runUpload,
	}
	uploadCmd.Flags().BoolVar(&mergedFlag, "merged", false, "Flash the merged release image with esptool")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Reset the device and stream its console output",
		RunE:  runMonitor,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fwpipe %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(buildCmd, mergeCmd, uploadCmd, monitorCmd, listCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the environment config and applies flag overrides.
func setup(cmd *cobra.Command) error {
	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = portFlag
	}
	if flags.Changed("baud") {
		cfg.Baud = baudFlag
	}
	if flags.Changed("timeout") {
		cfg.MonitorTimeout = timeoutFlag
	}
	if flags.Changed("build-dir") {
		cfg.BuildDir = buildDirFlag
	}
	if flags.Changed("output") {
		cfg.Output = outputFlag
	}
	if verboseFlag || cfg.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
	return nil
}

// runAll is the default: build, upload, monitor, stopping at the first
// failure. Monitor timeout and Ctrl+C are normal exits.
func runAll(cmd *cobra.Command, args []string) error {
	if err := runBuild(cmd, args); err != nil {
		return err
	}
	if err := runUpload(cmd, args); err != nil {
		return err
	}
	return runMonitor(cmd, args)
}

func runBuild(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Building ===")

	p := pipeline.New(cfg, &pipeline.ExecRunner{})
	result, err := p.Build(cmd.Context(), newMerger())
	if err != nil {
		return err
	}

	printMergeReport(result)
	return nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	p := pipeline.New(cfg, &pipeline.ExecRunner{})
	result, err := p.Merge(newMerger())
	if err != nil {
		return err
	}

	printMergeReport(result)
	return nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Uploading ===")

	p := pipeline.New(cfg, &pipeline.ExecRunner{})
	if mergedFlag {
		return p.UploadMerged(cmd.Context())
	}
	return p.Upload(cmd.Context())
}

func runMonitor(cmd *cobra.Command, args []string) error {
	portName := cfg.Port
	if portName == "" {
		detected, err := detect.Port()
		if err != nil {
			return err
		}
		portName = detected
	}

	port, err := serial.Open(portName, cfg.Baud)
	if err != nil {
		return err
	}
	defer port.Close()

	fmt.Println("=== Monitoring Serial Output ===")
	fmt.Printf("Port: %s, Baud: %d\n", port.PortName(), port.BaudRate())
	if cfg.MonitorTimeout > 0 {
		fmt.Printf("Timeout: %ds\n", cfg.MonitorTimeout)
	} else {
		fmt.Println("Timeout: none")
	}
	fmt.Println("Press Ctrl+C to exit")
	fmt.Println()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := &monitor.Session{
		Timeout: cfg.Timeout(),
		Out:     os.Stdout,
	}

	outcome, err := session.Run(ctx, port)
	if err != nil {
		return err
	}

	switch outcome {
	case monitor.OutcomeTimeout:
		fmt.Printf("\n[Monitor ended after %ds timeout]\n", cfg.MonitorTimeout)
	case monitor.OutcomeInterrupted:
		fmt.Println("\n[Monitor stopped by user]")
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		marker := ""
		if detect.Match(p) {
			marker = "  (USB)"
		}
		fmt.Printf("  %s%s\n", p, marker)
	}

	return nil
}

// newMerger wires a progress bar into the merge's segment copy.
func newMerger() *merge.Merger {
	merger := merge.New()

	var bar *progressbar.ProgressBar
	merger.SetProgressCallback(func(copied, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Merging"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowBytes(true),
				progressbar.OptionThrottle(100),
				progressbar.OptionClearOnFinish(),
			)
		}
		bar.Set(copied)
		if copied == total {
			bar.Finish()
		}
	})

	return merger
}

func printMergeReport(result *merge.Result) {
	fmt.Printf("Created: %s\n", result.Path)
	fmt.Printf("Size: %d bytes (%.2f MB)\n", result.Size, float64(result.Size)/1024/1024)
	if result.MagicOK {
		fmt.Println("Bootloader header: VALID")
	} else {
		fmt.Printf("WARNING: unexpected bootloader header: 0x%02X\n", result.MagicActual)
	}
	fmt.Printf("Manifest: %s\n", merge.ManifestPath(result.Path))
}
