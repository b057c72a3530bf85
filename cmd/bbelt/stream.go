package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ullo-labs/bbelt/belt"
	"github.com/ullo-labs/bbelt/internal/config"
	"github.com/ullo-labs/bbelt/internal/devicefactory"
	"github.com/ullo-labs/bbelt/internal/metrics"
	"github.com/ullo-labs/bbelt/lsl"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream belt samples to an LSL outlet",
	Long: fmt.Sprintf(`Connects to the breathing belt, subscribes to its data characteristic and
republishes every decoded sample as a 2-channel float32 LSL stream.

Channel 0 carries the breathing amplitude, channel 1 the raw IR value the
belt reported alongside it. The stream advertises a nominal rate of %g Hz
and the source id <name>_<type>_<address>, so recorders re-acquire the
same belt across restarts. Every 5 seconds the observed sample rate is
printed as a quick signal-quality check.

Examples:
  # Stream with defaults
  bbelt stream

  # Pick a different belt and print every sample
  bbelt stream -m %s -v

  # Publish under a custom stream name and type
  bbelt stream -n lab_belt -t breathing_amp

  # Expose Prometheus metrics while streaming
  bbelt stream --metrics-addr 127.0.0.1:9290

%s`, belt.NominalRate, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.NoArgs,
	RunE: runStream,
}

var (
	streamMACAddress     string
	streamName           string
	streamType           string
	streamVerbose        bool
	streamCharacteristic string
	streamConnectTimeout time.Duration
	streamPortRange      string
	streamDiscoveryPort  int
	streamMetricsAddr    string
)

func init() {
	d := config.Default()
	streamCmd.Flags().StringVarP(&streamMACAddress, "mac-address", "m", d.Device.Address, "Belt device address")
	streamCmd.Flags().StringVarP(&streamName, "name", "n", d.Stream.Name, "LSL stream name")
	streamCmd.Flags().StringVarP(&streamType, "type", "t", d.Stream.Type, "LSL stream type")
	streamCmd.Flags().BoolVarP(&streamVerbose, "verbose", "v", false, "Print every decoded sample")
	streamCmd.Flags().StringVar(&streamCharacteristic, "characteristic", d.Device.Characteristic, "Data characteristic UUID")
	streamCmd.Flags().DurationVar(&streamConnectTimeout, "connect-timeout", d.Device.ConnectTimeout, "Connection timeout (0 waits indefinitely)")
	streamCmd.Flags().StringVar(&streamPortRange, "lsl-port-range", d.LSL.PortRange, "LSL streamfeed TCP port range")
	streamCmd.Flags().IntVar(&streamDiscoveryPort, "lsl-discovery-port", d.LSL.DiscoveryPort, "LSL discovery UDP port")
	streamCmd.Flags().StringVar(&streamMetricsAddr, "metrics-addr", d.Metrics.Addr, "Prometheus endpoint address (empty disables)")
}

// streamSettings merges the config file with explicitly set flags.
// Flags win over the file, the file wins over built-in defaults.
func streamSettings(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("mac-address") {
		cfg.Device.Address = streamMACAddress
	}
	if flags.Changed("characteristic") {
		cfg.Device.Characteristic = streamCharacteristic
	}
	if flags.Changed("connect-timeout") {
		cfg.Device.ConnectTimeout = streamConnectTimeout
	}
	if flags.Changed("name") {
		cfg.Stream.Name = streamName
	}
	if flags.Changed("type") {
		cfg.Stream.Type = streamType
	}
	if flags.Changed("lsl-port-range") {
		cfg.LSL.PortRange = streamPortRange
	}
	if flags.Changed("lsl-discovery-port") {
		cfg.LSL.DiscoveryPort = streamDiscoveryPort
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = streamMetricsAddr
	}
	return cfg, nil
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := streamSettings(cmd)
	if err != nil {
		return err
	}

	if cfg.Device.Address == "" {
		return fmt.Errorf("belt device address is required")
	}
	if cfg.Device.Characteristic == "" {
		return fmt.Errorf("data characteristic UUID is required")
	}

	portStart, portEnd, err := config.ParsePortRange(cfg.LSL.PortRange)
	if err != nil {
		return err
	}

	// Configure logger based on --log-level and --verbose flags
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	address := cfg.Device.Address
	sourceID := lsl.SourceIDFor(cfg.Stream.Name, cfg.Stream.Type, address)
	info := lsl.NewStreamInfo(cfg.Stream.Name, cfg.Stream.Type, 2, belt.NominalRate, sourceID)

	// The standard discovery port implies the LSL multicast group; anything
	// else binds a plain UDP socket on that port.
	discoveryAddr := ""
	if cfg.LSL.DiscoveryPort != lsl.DiscoveryPort {
		discoveryAddr = fmt.Sprintf(":%d", cfg.LSL.DiscoveryPort)
	}

	outlet, err := lsl.NewOutlet(info, &lsl.OutletOptions{
		PortStart:        portStart,
		PortEnd:          portEnd,
		DiscoveryAddress: discoveryAddr,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create LSL outlet: %w", err)
	}
	outlet.Start(ctx)
	defer func() { _ = outlet.Close() }()

	m := metrics.New(logger)
	m.RegisterGaugeFunc("bbelt_lsl_consumers", "Connected LSL streamfeed clients.", func() float64 {
		return float64(outlet.ConsumerCount())
	})
	m.RegisterCounterFunc("bbelt_lsl_dropped_frames_total", "Frames lost by slow LSL consumers.", func() float64 {
		return float64(outlet.DroppedFrames())
	})

	dispatcher := belt.NewDispatcher()
	dispatcher.Register(func(s belt.Sample) {
		ch := s.Channels()
		outlet.PushSample(ch[:])
		m.SamplesPushed.Inc()
		if streamVerbose {
			fmt.Printf("Breathing Amp: %d raw IR: %d\n", s.Primary, s.Secondary)
		}
	})

	dev := devicefactory.NewDevice(address, logger)
	session := belt.NewSession(belt.Config{
		Address:            address,
		CharacteristicUUID: cfg.Device.Characteristic,
		ConnectTimeout:     cfg.Device.ConnectTimeout,
	}, dev, dispatcher, logger)

	m.RegisterCounterFunc("bbelt_payloads_decoded_total", "Payloads decoded into samples.", func() float64 {
		accepted, _ := session.Stats()
		return float64(accepted)
	})
	m.RegisterCounterFunc("bbelt_payloads_dropped_total", "Undersized payloads discarded by the decoder.", func() float64 {
		_, dropped := session.Stats()
		return float64(dropped)
	})

	session.SetRateReporter(func(count int64, rate float64) {
		m.SampleRate.Set(rate)
		fmt.Printf("Samples incoming at: %v Hz\n", rate)
	})

	if cfg.Metrics.Addr != "" {
		if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			_ = m.Shutdown(shutdownCtx)
		}()
	}

	// Setup progress display; the session's state transitions drive it
	progress := NewProgressPrinter(fmt.Sprintf("Connecting to belt %s", address), "Connecting", "Streaming")
	progress.Start()
	defer progress.Stop()

	onPhase := progress.Callback()
	session.SetStateListener(func(st belt.State) {
		if st == belt.StateStreaming {
			onPhase("Streaming")
			fmt.Fprintf(os.Stderr, "Streaming '%s' (%s) on LSL port %d. Press Ctrl+C to stop...\n",
				cfg.Stream.Name, sourceID, outlet.Port())
		}
	})

	return session.Run(ctx)
}
