package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/quantizer/lib/quantizer"

	"go-playseq/config"
	"go-playseq/debug"
	"go-playseq/midi"
	"go-playseq/sequencer"
	"go-playseq/theme"
	"go-playseq/transport"
	"go-playseq/tui"
)

var (
	configPath  string
	patternPath string
	palettePath string
	logLevel    string
	debugLog    bool
	interval    string
	quantize    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "go-playseq",
	Short: "Step sequencer and monophonic glide for MIDI controllers",
	Long: `go-playseq records live input into a 16 lane step grid, replays it in
time with its own clock and can squeeze everything into one gliding voice
before it reaches the synth.

Examples:
  go-playseq                 # terminal UI
  go-playseq run             # headless, controllers only
  go-playseq export beat.mid
  go-playseq import beat.mid
  go-playseq import --quantize take.mid
  go-playseq ports`,
	SilenceUsage: true,
	RunE:         runTUI,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run with the terminal UI",
	RunE:  runTUI,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run headless until interrupted",
	RunE:  runHeadless,
}

var exportCmd = &cobra.Command{
	Use:   "export <file.mid>",
	Short: "Write the saved pattern as a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file.mid>",
	Short: "Quantize a MIDI file into the saved pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports",
	RunE:  runPorts,
}

func init() {
	rootCmd.PersistentPreRunE = setupLogging
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/go-playseq/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&patternPath, "pattern", "", "pattern file (default ~/.config/go-playseq/pattern.mid)")
	rootCmd.PersistentFlags().StringVar(&palettePath, "palette", "", "GIMP palette (.gpl) for the UI and pad colors")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "log at debug level to ~/.config/go-playseq/debug.log")

	importCmd.Flags().StringVarP(&interval, "interval", "i", "", "step interval to read the file in (default from config)")
	importCmd.Flags().BoolVarP(&quantize, "quantize", "q", false, "snap a live recording to the beat grid before reading it")

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(portsCmd)
}

// setupLogging puts the logger on the command context. The TUI owns the
// terminal, so it only logs with --debug.
func setupLogging(cmd *cobra.Command, args []string) error {
	var logger *log.Logger
	switch {
	case debugLog:
		l, err := debug.Enable()
		if err != nil {
			return fmt.Errorf("debug log: %w", err)
		}
		logger = l
	case cmd == rootCmd || cmd == tuiCmd:
		logger = debug.New(io.Discard, log.ErrorLevel)
	default:
		logger = debug.New(os.Stderr, debug.ParseLevel(logLevel))
	}
	cmd.SetContext(log.WithContext(cmd.Context(), logger))
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func loadTheme() (*theme.Theme, error) {
	if palettePath == "" {
		return theme.New(theme.Plasma()), nil
	}
	p, err := theme.LoadGPL(palettePath)
	if err != nil {
		return nil, err
	}
	return theme.New(p), nil
}

func resolvePatternPath() (string, error) {
	if patternPath != "" {
		return patternPath, nil
	}
	return config.PatternPath()
}

// openSink opens the configured output port. Without one notes are only
// logged.
func openSink(cfg *config.Config, logger *log.Logger) (*midi.PortSink, error) {
	channel := uint8(cfg.Ports.Channel - 1)
	if cfg.Ports.Output == "" {
		logger.Warn("no output port configured, notes are only logged")
		send := func(msg gomidi.Message) error {
			logger.Debug("out", "msg", msg.String())
			return nil
		}
		return midi.NewPortSink(send, channel, cfg.Ports.BendRange, logger), nil
	}
	return midi.OpenPortSink(cfg.Ports.Output, channel, cfg.Ports.BendRange, logger)
}

// session is everything a running command needs
type session struct {
	cfg     *config.Config
	theme   *theme.Theme
	sink    *midi.PortSink
	mgr     *sequencer.Manager
	pattern string
	log     *log.Logger
}

func openSession(ctx context.Context, withPort bool) (*session, error) {
	logger := log.FromContext(ctx)
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	th, err := loadTheme()
	if err != nil {
		return nil, err
	}
	pattern, err := resolvePatternPath()
	if err != nil {
		return nil, err
	}

	var sink *midi.PortSink
	if withPort {
		sink, err = openSink(cfg, logger)
	} else {
		sink = midi.NewPortSink(func(gomidi.Message) error { return nil }, 0, cfg.Ports.BendRange, logger)
	}
	if err != nil {
		return nil, err
	}

	mgr, err := sequencer.NewManager(cfg, sink, th, logger)
	if err != nil {
		sink.Close()
		return nil, err
	}
	s := &session{cfg: cfg, theme: th, sink: sink, mgr: mgr, pattern: pattern, log: logger}
	if err := s.loadPattern(); err != nil {
		logger.Warn("pattern not loaded", "path", pattern, "err", err)
	}
	return s, nil
}

func (s *session) loadPattern() error {
	f, err := os.Open(s.pattern)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return s.mgr.ImportPattern(f)
}

func (s *session) savePattern() error {
	if err := os.MkdirAll(filepath.Dir(s.pattern), 0755); err != nil {
		return err
	}
	f, err := os.Create(s.pattern)
	if err != nil {
		return err
	}
	if err := s.mgr.ExportPattern(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// close saves the pattern and the live settings. Call after Run returns.
func (s *session) close() {
	if err := s.savePattern(); err != nil {
		s.log.Error("save pattern", "path", s.pattern, "err", err)
	}
	if err := s.mgr.Config().Save(configPath); err != nil {
		s.log.Error("save config", "err", err)
	}
	s.sink.Panic()
	if err := s.sink.Close(); err != nil {
		s.log.Warn("close output", "err", err)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	defer debug.Disable()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}

	deviceMgr := midi.NewDeviceManager(s.cfg.KeyboardPort(), s.log)
	go deviceMgr.Run(ctx)

	done := make(chan error, 1)
	go func() { done <- s.mgr.Run(ctx) }()

	m := tui.NewModel(s.mgr, deviceMgr, s.theme)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, runErr := p.Run()

	cancel()
	if err := <-done; err != nil {
		s.log.Error("manager", "err", err)
	}
	s.close()
	return runErr
}

func runHeadless(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}

	deviceMgr := midi.NewDeviceManager(s.cfg.KeyboardPort(), s.log)
	go deviceMgr.Run(ctx)
	go func() {
		for ev := range deviceMgr.Events() {
			s.mgr.HandleDeviceEvent(ev)
		}
	}()

	s.log.Info("running, ctrl+c to stop", "output", s.cfg.Ports.Output, "keyboard", s.cfg.KeyboardPort())
	err = s.mgr.Run(ctx)
	s.close()
	return err
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := s.mgr.ExportPattern(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	st := s.mgr.State()
	fmt.Printf("Wrote %s: %d steps of %s at %.0fbpm\n", args[0], st.Steps, st.Interval, st.Tempo)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), false)
	if err != nil {
		return err
	}
	if interval != "" {
		iv, err := transport.ParseInterval(interval)
		if err != nil {
			return err
		}
		if err := s.mgr.SetInterval(iv); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	in := bytes.NewBuffer(data)
	if quantize {
		var out bytes.Buffer
		if err := quantizer.Quantize(in, &out); err != nil {
			return fmt.Errorf("quantize %s: %w", args[0], err)
		}
		in = &out
	}
	if err := s.mgr.ImportPattern(in); err != nil {
		return err
	}
	if err := s.savePattern(); err != nil {
		return fmt.Errorf("save pattern: %w", err)
	}
	if err := s.mgr.Config().Save(configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	st := s.mgr.State()
	fmt.Printf("Imported %s into %s (%d/%d, %s x%d)\n", args[0], s.pattern, st.Top, st.Bottom, st.Interval, st.Measures)
	fmt.Print(renderCells(st))
	return nil
}

func runPorts(cmd *cobra.Command, args []string) error {
	defer gomidi.CloseDriver()

	fmt.Println("Inputs:")
	for i, p := range gomidi.GetInPorts() {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("Outputs:")
	for i, p := range gomidi.GetOutPorts() {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	return nil
}

// renderCells prints the grid one lane per line, top lane first
func renderCells(st *sequencer.State) string {
	var out strings.Builder
	for lane := sequencer.NumLanes - 1; lane >= 0; lane-- {
		fmt.Fprintf(&out, "%3d ", st.LaneNote+lane)
		for col, v := range st.Cells[lane] {
			if col > 0 && col%4 == 0 {
				out.WriteByte(' ')
			}
			switch {
			case v >= .75:
				out.WriteRune('●')
			case v > 0:
				out.WriteRune('○')
			default:
				out.WriteRune('·')
			}
		}
		out.WriteByte('\n')
	}
	return out.String()
}
