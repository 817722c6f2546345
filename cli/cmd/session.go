package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/cli/internal/config"
	"github.com/BioHazard786/Warproom/cli/internal/execution"
	"github.com/BioHazard786/Warproom/cli/internal/negotiation"
	"github.com/BioHazard786/Warproom/cli/internal/room"
	"github.com/BioHazard786/Warproom/cli/internal/signaling"
	"github.com/BioHazard786/Warproom/cli/internal/ui"
	"github.com/BioHazard786/Warproom/internal/protocol"
)

const (
	relayDialTimeout = 15 * time.Second
	executionTimeout = 60 * time.Second
)

// roomFlags are the flags shared by host and join.
type roomFlags struct {
	domain           string
	stun             string
	turn             string
	turnUser         string
	turnPass         string
	forceRelay       bool
	insecure         bool
	executionURL     string
	connectTimeout   time.Duration
	reportViolations bool
	name             string
	audio            bool
	video            bool
	noMedia          bool
}

func (f *roomFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.domain, "domain", "d", "", "Custom relay domain")
	cmd.Flags().StringVarP(&f.stun, "stun", "s", "", "Custom STUN server")
	cmd.Flags().StringVarP(&f.turn, "turn", "t", "", "Custom TURN server")
	cmd.Flags().StringVarP(&f.turnUser, "turn-user", "u", "", "TURN username")
	cmd.Flags().StringVarP(&f.turnPass, "turn-pass", "p", "", "TURN password")
	cmd.Flags().BoolVarP(&f.forceRelay, "relay", "r", false, "Force relay mode")
	cmd.Flags().BoolVar(&f.insecure, "insecure", false, "Connect to the relay over ws:// instead of wss://")
	cmd.Flags().StringVar(&f.executionURL, "execution-url", "", "Code execution service URL")
	cmd.Flags().DurationVar(&f.connectTimeout, "connect-timeout", 0, "How long to wait for the peer connection before suggesting a retry")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Name shown to the other participant")
	cmd.Flags().BoolVar(&f.audio, "audio", true, "Send microphone audio")
	cmd.Flags().BoolVar(&f.video, "video", true, "Send camera video")
	cmd.Flags().BoolVar(&f.noMedia, "no-media", false, "Join without audio or video")
}

func (f *roomFlags) options() config.Options {
	return config.Options{
		Domain:           f.domain,
		STUNServer:       f.stun,
		TURNServer:       f.turn,
		TURNUser:         f.turnUser,
		TURNPass:         f.turnPass,
		ForceRelay:       f.forceRelay,
		Insecure:         f.insecure,
		ExecutionURL:     f.executionURL,
		ConnectTimeout:   f.connectTimeout,
		ReportViolations: f.reportViolations,
		Name:             f.name,
	}
}

func (f *roomFlags) media() negotiation.MediaState {
	if f.noMedia {
		return negotiation.MediaState{}
	}
	return negotiation.MediaState{Audio: f.audio, Video: f.video}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// runRoom connects to the relay and runs one participant's room until it
// ends, then prints a summary.
func runRoom(role protocol.Role, roomID string, f *roomFlags) error {
	cfg, err := LoadConfig(f.options())
	if err != nil {
		return err
	}
	log := zap.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	fmt.Println()
	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	client := signaling.NewClient(cfg.WebSocketURL, log)
	dialCtx, cancelDial := context.WithTimeout(ctx, relayDialTimeout)
	err = client.Connect(dialCtx)
	cancelDial()
	if err != nil {
		sp.Error("Could not reach the relay")
		return fmt.Errorf("connect to relay: %w", err)
	}
	sp.Success(fmt.Sprintf("Connected to %s", cfg.Domain))

	profile := protocol.Profile{ID: uuid.NewString(), Name: cfg.Name}
	media := f.media()
	source := negotiation.NewSampleSource("warproom-" + profile.ID)
	env := ui.NewTerminalEnvironment()
	feed := ui.NewFeed()

	session := room.New(room.Options{
		Role:    role,
		RoomID:  roomID,
		Profile: profile,
		Channel: client,
		NewTransport: func() (negotiation.Transport, error) {
			t, err := negotiation.NewPionTransport(cfg, source, log)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		Execution:         execution.NewClient(cfg.ExecutionURL, executionTimeout, execution.Limits{}),
		Environment:       env,
		ForwardViolations: cfg.ReportViolations,
		Media:             media,
		ConnectTimeout:    cfg.ConnectTimeout,
		Logger:            log,
		Notify:            feed.Notify,
	})

	sessionCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()
	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(sessionCtx) }()

	model := ui.NewRoomModel(ui.ModelOptions{
		Controller:  session,
		Feed:        feed,
		Environment: env,
		RoomLink:    cfg.GetRoomLink,
		Media:       media,
	})
	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
	)
	_, uiErr := p.Run()

	// The UI normally quits because the session ended; otherwise leave now.
	cancelSession()
	err = <-runErr

	fmt.Println()
	ui.RenderSessionSummary(os.Stdout, session.Snapshot())

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("room ui: %w", uiErr)
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
