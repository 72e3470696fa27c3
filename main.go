package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"parley/audio"
	"parley/encoder"
	"parley/hotkey"
	"parley/log"
	"parley/session"
	"parley/shutdown"
	"parley/store"
	"parley/visual"
)

var version = "dev"

// holdThreshold separates a held push-to-talk key from a tap.
const holdThreshold = 300 * time.Millisecond

var (
	clientColor = color.RGBA{R: 0x00, G: 0x99, B: 0xff, A: 0xff}
	serverColor = color.RGBA{R: 0x00, G: 0x99, B: 0x00, A: 0xff}
)

var (
	configPath string
	logPath    string
	noHotkey   bool
	pickDevice bool
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Voice console for realtime speech agents",
	Long: `parley - talk to a realtime speech agent from the terminal.

The console streams your microphone to the agent, plays its replies and
shows the transcript next to the raw event log. Speak with push-to-talk
(space, or the global hotkey) or let the server detect turns (vad mode).

Configuration is read from <user config dir>/parley/config.yaml, then the
environment (OPENAI_API_KEY, PARLEY_RELAY_URL), then flags.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConsole,
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		actx, err := audio.NewContext()
		if err != nil {
			return fmt.Errorf("audio init: %w", err)
		}
		defer actx.Close()
		return audio.ListDevices(cmd.OutOrStdout(), actx)
	},
}

var instructionsCmd = &cobra.Command{
	Use:   "instructions",
	Short: "Show or change the stored agent instructions",
}

var instructionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the instructions used for new conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		st, err := store.Open(store.Options{Dir: cfg.StoreDir, Profile: cfg.Profile})
		if err != nil {
			return err
		}
		defer st.Close()
		text, err := st.Load(cmd.Context(), cfg.Instructions)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var instructionsSetCmd = &cobra.Command{
	Use:   "set [text]",
	Short: "Store new instructions (reads stdin without an argument)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		var text string
		if len(args) == 1 {
			text = args[0]
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read instructions: %w", err)
			}
			text = string(data)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return errors.New("instructions are empty")
		}

		st, err := store.Open(store.Options{Dir: cfg.StoreDir, Profile: cfg.Profile})
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Set(cmd.Context(), text); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved instructions for profile %q\n", cfg.Profile)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "parley %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default: <user config dir>/parley/config.yaml)")
	pf.StringVar(&logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	pf.String("profile", "", "instruction profile")
	pf.String("store-dir", "", "instruction store directory")

	f := rootCmd.Flags()
	f.String("relay-url", "", "relay server URL (replaces the API key)")
	f.String("model", "", "realtime model")
	f.String("voice", "", "agent voice")
	f.String("greeting", "", "first message sent after connecting")
	f.String("turn-mode", "", "turn mode: manual or vad")
	f.String("decode-format", "", "utterance file format: wav or flac")
	f.String("decode-dir", "", "directory for decoded utterances")
	f.String("device", "", "capture device name or id")
	f.String("hotkey", "", "global push-to-talk key (e.g. ctrl+shift+space, f9)")
	f.Duration("frame-interval", 0, "visualizer frame interval")
	f.BoolVar(&noHotkey, "no-hotkey", false, "disable the global push-to-talk key")
	f.BoolVar(&pickDevice, "select-device", false, "pick the capture device interactively")

	instructionsCmd.AddCommand(instructionsShowCmd, instructionsSetCmd)
	rootCmd.AddCommand(devicesCmd, instructionsCmd, versionCmd)
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings merges the config file, the environment and the flags that
// were set on cmd.
func loadSettings(cmd *cobra.Command) (Config, error) {
	path, explicit := configPath, configPath != ""
	if !explicit {
		p, err := defaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return cfg, err
	}
	cfg.applyEnv(os.Getenv)
	applyFlags(cmd, &cfg)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	strs := map[string]*string{
		"relay-url":     &cfg.RelayURL,
		"model":         &cfg.Model,
		"voice":         &cfg.Voice,
		"greeting":      &cfg.Greeting,
		"turn-mode":     &cfg.TurnMode,
		"decode-format": &cfg.DecodeFormat,
		"decode-dir":    &cfg.DecodeDir,
		"device":        &cfg.Device,
		"hotkey":        &cfg.Hotkey,
		"profile":       &cfg.Profile,
		"store-dir":     &cfg.StoreDir,
	}
	for name, dst := range strs {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("frame-interval") {
		cfg.FrameInterval, _ = flags.GetDuration("frame-interval")
	}
}

func setupLogging() {
	dir, err := log.ResolveDir(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to resolve log directory: %v\n", err)
		return
	}
	log.SetDir(dir)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
		return
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if f, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(f, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
}

// loadInstructions prefers the stored instructions for the profile. A store
// that cannot be opened is not fatal.
func loadInstructions(ctx context.Context, cfg Config) string {
	st, err := store.Open(store.Options{Dir: cfg.StoreDir, Profile: cfg.Profile})
	if err != nil {
		log.Warnf("instruction store unavailable: %v", err)
		return cfg.Instructions
	}
	defer st.Close()
	text, err := st.Load(ctx, cfg.Instructions)
	if err != nil {
		log.Warnf("load instructions: %v", err)
		return cfg.Instructions
	}
	return text
}

func resolveDevice(actx audio.Context, name string, pick bool) (*audio.DeviceInfo, error) {
	if name != "" {
		return audio.FindDevice(actx, name)
	}
	if !pick {
		return nil, nil
	}
	dev, err := audio.SelectDevice(actx)
	if err != nil {
		log.Warnf("device selection failed: %v", err)
		fmt.Fprintln(os.Stderr, "Falling back to default device")
		return nil, nil
	}
	return dev, nil
}

// newBarsLoop renders the microphone and agent spectra into the side panel.
func newBarsLoop(interval time.Duration, c *session.Console) *visual.Loop {
	var you, agent visual.TermSurface
	surface := func(s *visual.TermSurface) func() visual.Surface {
		return func() visual.Surface {
			if !s.Layout(barCols, barRows) {
				return nil
			}
			return s
		}
	}
	bars := func(col color.Color) visual.BarOptions {
		return visual.BarOptions{Color: col, BarCount: 10, BarSpacing: 1}
	}
	onFrame := func() {
		tuiSend(BarsMsg{Client: you.Render(), Server: agent.Render()})
	}

	return visual.NewLoop(interval, visual.NewCache(), onFrame,
		visual.Channel{Name: "client", Surface: surface(&you), Source: visual.Snapshots(c.Recorder.Frequencies), Options: bars(clientColor)},
		visual.Channel{Name: "server", Surface: surface(&agent), Source: visual.Snapshots(c.Player.Frequencies), Options: bars(serverColor)},
	)
}

// startHotkey registers the global push-to-talk key and forwards its
// actions to the TUI. It returns the key's display name, or "" when no key
// could be registered.
func startHotkey(ctx context.Context, binding string) (string, func()) {
	b, err := hotkey.ParseBinding(binding)
	if err != nil {
		log.Warnf("hotkey: %v", err)
		return "", func() {}
	}
	hk := hotkey.New(b)
	if err := hk.Register(); err != nil {
		log.Warnf("hotkey registration failed: %v", err)
		return "", func() {}
	}
	ptt := hotkey.NewPushToTalk(ctx, hk, holdThreshold)
	go func() {
		for a := range ptt.Actions() {
			tuiSend(HotkeyMsg{Action: a})
		}
	}()
	log.Infof("hotkey registered: %s", b)
	return b.String(), hk.Unregister
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	mode, _ := session.ParseTurnMode(cfg.TurnMode)

	setupLogging()
	defer log.Close()

	ctx, stop := shutdown.Context(cmd.Context())
	defer stop()

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		return fmt.Errorf("audio init: %w", err)
	}
	defer actx.Close()

	device, err := resolveDevice(actx, cfg.Device, pickDevice)
	if err != nil {
		return err
	}

	console, err := session.NewConsole(session.ConsoleConfig{
		Realtime:     cfg.realtimeConfig(),
		Instructions: loadInstructions(ctx, cfg),
		Greeting:     cfg.Greeting,
		Audio:        actx,
		Device:       device,
		Decoder:      encoder.FileDecoder{Dir: cfg.DecodeDir, Format: cfg.DecodeFormat},
		Sink:         tuiSink{},
	})
	if err != nil {
		return err
	}

	hotkeyName, unregister := "", func() {}
	if cfg.Hotkey != "" && !noHotkey {
		hotkeyName, unregister = startHotkey(ctx, cfg.Hotkey)
	}
	defer unregister()

	p := NewTUIProgram(newTUIModel(console, hotkeyName, mode))
	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()

	bars := newBarsLoop(cfg.FrameInterval, console)
	bars.Start()
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, runErr := p.Run()

	bars.Stop()
	tuiMu.Lock()
	tuiProgram = nil
	tuiMu.Unlock()

	if err := console.Disconnect(context.Background()); err != nil {
		log.Warnf("disconnect: %v", err)
	}
	if runErr != nil {
		log.Errorf("TUI error: %v", runErr)
		return runErr
	}
	return nil
}
