package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ullo-labs/bbelt/internal/config"
	"github.com/ullo-labs/bbelt/internal/device"
	"github.com/ullo-labs/bbelt/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Useful for finding the belt's address before streaming. Discovered
devices are listed with their names, addresses, RSSI values, and
advertised services.`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
	scanWatch       bool
)

type scanConfig struct {
	scanTimeout  time.Duration
	outputFormat string
}

func defaultScanConfig() *scanConfig {
	return &scanConfig{
		scanTimeout:  10 * time.Second,
		outputFormat: "table",
	}
}

func init() {
	d := config.Default()
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", d.Scan.Timeout, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and update results")
}

func runScan(cmd *cobra.Command, args []string) error {
	// Validate format parameter
	validFormats := []string{"table", "json"}
	isValidFormat := false
	for _, format := range validFormats {
		if scanFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", scanFormat, validFormats)
	}

	// Configure logger based on --log-level flag
	logger, err := configureLogger(cmd, "")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Create configuration; the config file supplies the timeout unless
	// --duration was given explicitly
	cfgPath, _ := cmd.Flags().GetString("config")
	fileCfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	cfg := defaultScanConfig()
	cfg.outputFormat = scanFormat
	cfg.scanTimeout = fileCfg.Scan.Timeout
	if cmd.Flags().Changed("duration") {
		cfg.scanTimeout = scanDuration
	}

	// Watch mode defaults to an indefinite scan
	if scanWatch && !cmd.Flags().Changed("duration") {
		cfg.scanTimeout = 0
	}

	// Create scanner
	s, err := scanner.NewScanner(logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	// Validate and normalize service UUIDs if provided
	var serviceUUIDs []string
	if len(scanServices) > 0 {
		var err error
		serviceUUIDs, err = device.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	// Create scan options
	scanOpts := &scanner.ScanOptions{
		Duration:        cfg.scanTimeout,
		DuplicateFilter: scanNoDuplicate,
		ServiceUUIDs:    serviceUUIDs,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}

	if scanWatch {
		return runWatchMode(s, scanOpts, cfg, logger)
	}

	return runSingleScan(s, scanOpts, cfg, logger)
}

func runSingleScan(s *scanner.Scanner, opts *scanner.ScanOptions, cfg *scanConfig, logger *logrus.Logger) error {
	if cfg == nil {
		cfg = defaultScanConfig()
	}

	// Create a cancellable context for signal handling; the scanner applies
	// the duration itself
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	// Setup progress printer
	progress := NewCountdownProgressPrinter("Scanning for BLE devices", "Scanning", cfg.scanTimeout, "Processing results")
	progress.Start()
	defer progress.Stop()

	// Perform scan
	devices, err := s.Scan(ctx, opts, progress.Callback())

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}
	return displayDevices(devices, cfg)
}

func runWatchMode(s *scanner.Scanner, opts *scanner.ScanOptions, cfg *scanConfig, logger *logrus.Logger) error {
	// Scan until interrupted by the user.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up our own signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh

		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	// The device table is built from scanner events alone; the scan's own
	// snapshot is redundant here and reading it would race with this loop
	devices := make(map[string]device.DeviceInfo)

	// Run the blocking scan in a goroutine
	scanErrCh := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx, opts, nil) // No progress callback for watch mode
		scanErrCh <- err
	}()

	printDeviceTable := func(err error) error {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		clearScreen()
		return displayDevices(devices, cfg)
	}

	// Periodic ticker so ctx.Done() is never starved by a busy events channel
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	tickCount := 0

	for {
		select {
		case <-ctx.Done():
			return printDeviceTable(ctx.Err())

		case err := <-scanErrCh:
			// Scan completed; receive from a nil channel blocks forever, so
			// this case fires at most once
			scanErrCh = nil
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return printDeviceTable(err)
			}
			// Scan completed normally - continue watching events

		case <-ticker.C:
			select {
			case <-ctx.Done():
				return printDeviceTable(nil)
			default:
			}

			// Periodic print of device table
			tickCount++
			if tickCount == 10 {
				_ = printDeviceTable(nil)
				tickCount = 0
			}

		case ev := <-s.Events():
			devices[ev.DeviceInfo.Address()] = ev.DeviceInfo
		}
	}
}

func displayDevices(devices map[string]device.DeviceInfo, cfg *scanConfig) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	devList := make([]device.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		devList = append(devList, d)
	}

	// Sort by Name
	sort.Slice(devList, func(i, j int) bool {
		return devList[i].Name() > devList[j].Name()
	})

	switch cfg.outputFormat {
	case "json":
		return displayDevicesJSON(devList)
	default:
		return displayDevicesTable(devList)
	}
}

func displayDevicesTable(devices []device.DeviceInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, dev := range devices {
		name := dev.Name()
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(dev.AdvertisedServices(), ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		lastSeen := time.Since(dev.LastSeen()).Truncate(time.Second)

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
			name, dev.Address(), dev.RSSI(), services, lastSeen)
	}

	return w.Flush()
}

func displayDevicesJSON(devices []device.DeviceInfo) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

func clearScreen() {
	fmt.Print("\033[2J\033[H")
}
