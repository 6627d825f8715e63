// Command peer is a headless call participant. It connects to the relay,
// prints its identity and either calls --call or waits for an invite.
// Media comes from synthetic devices.
package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/peercall/internal/adapters/rtc"
	sig "github.com/dkeye/peercall/internal/adapters/signal"
	"github.com/dkeye/peercall/internal/call"
	"github.com/dkeye/peercall/internal/config"
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := pflag.NewFlagSet("peer", pflag.ExitOnError)
	fs.String("relay-url", "ws://localhost:4000/socket", "relay websocket url")
	fs.StringSlice("ice-servers", []string{"stun:stun.l.google.com:19302"}, "STUN/TURN urls")
	fs.Duration("invite-timeout", 30*time.Second, "give up on an unanswered invite (0 waits forever)")
	callee := fs.String("call", "", "identity to call once connected")
	manual := fs.Bool("manual", false, "ask before answering (a, d, h on stdin)")
	deny := fs.Bool("deny-media", false, "simulate refused camera/microphone access")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	mode, err := call.ParseAnswerMode(cfg.AnswerMode)
	if err != nil {
		log.Fatal().Err(err).Msg("bad answer mode")
	}
	if *manual {
		mode = call.AnswerManual
	}

	api, err := rtc.NewAPI()
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}
	rtcCfg := rtc.DefaultWebRTCConfig(cfg.ICEServers)

	conn, err := sig.Dial(ctx, cfg.RelayURL, sig.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		WriteWait:  cfg.WriteWait,
		SendQueue:  cfg.SendQueue,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("relay unreachable")
	}
	defer conn.Close()

	remote := &media.RemoteStream{}
	ctl := call.New(call.Config{
		Channel: conn,
		Devices: media.SyntheticDevices{Deny: *deny},
		NewPeer: func(id domain.Identity) (core.MediaConnection, error) {
			pc, err := rtc.NewConnection(api, rtcCfg, id)
			if err != nil {
				return nil, err
			}
			return pc, nil
		},
		AnswerMode:    mode,
		InviteTimeout: cfg.InviteTimeout,
	})
	ctl.OnIncomingCall(func(caller domain.Identity) {
		if mode == call.AnswerManual {
			log.Info().Str("caller", string(caller)).Msg("incoming call: a=accept d=decline")
		}
	})
	ctl.OnCallAccepted(func(id domain.Identity) {
		log.Info().Str("remote", string(id)).Msg("call connected")
	})
	ctl.OnCallEnded(func(id domain.Identity, reason call.EndReason) {
		log.Info().Str("remote", string(id)).Str("reason", reason.String()).Msg("call over")
		remote.Reset()
	})
	ctl.OnRemoteTrack(func(id domain.Identity, track *webrtc.TrackRemote) {
		logger := log.With().Str("module", "peer").Str("remote", string(id)).Str("kind", track.Kind().String()).Logger()
		logger.Info().Str("codec", track.Codec().MimeType).Msg("remote track")
		remote.Attach(ctx, track, &logger)
	})
	ctl.OnMediaError(func(err error) {
		log.Error().Err(err).Msg("camera/microphone unavailable, calls are disabled")
	})

	_ = ctl.Start(ctx)
	defer ctl.Close()

	if err := waitReady(ctx, ctl.Ready(), conn.Done()); err != nil {
		log.Error().Err(err).Msg("not ready")
		return
	}
	log.Info().Str("identity", string(ctl.LocalIdentity())).Msg("ready")

	if *callee != "" {
		if err := ctl.PlaceCall(ctx, domain.Identity(*callee)); err != nil {
			log.Error().Err(err).Msg("place call")
		}
	}

	go readCommands(ctx, ctl)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			log.Warn().Msg("relay connection closed")
			return
		case <-ticker.C:
			if ctl.Phase() == call.Active {
				st := remote.Stats()
				log.Info().Int("tracks", st.Tracks).Uint64("packets", st.Packets).Uint64("bytes", st.Bytes).Msg("remote media")
			}
		}
	}
}

var errRelayClosed = errors.New("relay closed before assigning an identity")

// waitReady blocks until the relay has assigned an identity.
func waitReady(ctx context.Context, ready, relayDone <-chan struct{}) error {
	select {
	case <-ready:
		return nil
	case <-relayDone:
		return errRelayClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readCommands maps single-letter lines on stdin onto controller actions.
func readCommands(ctx context.Context, ctl *call.Controller) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		var err error
		switch cmd := strings.TrimSpace(sc.Text()); {
		case cmd == "a":
			err = ctl.Accept(ctx)
		case cmd == "d":
			err = ctl.Decline()
		case cmd == "h":
			ctl.EndCall()
		case cmd == "m":
			log.Info().Bool("mic", ctl.ToggleMicrophone()).Msg("toggled")
		case cmd == "v":
			log.Info().Bool("camera", ctl.ToggleCamera()).Msg("toggled")
		case strings.HasPrefix(cmd, "c "):
			err = ctl.PlaceCall(ctx, domain.Identity(strings.TrimSpace(cmd[2:])))
		}
		if err != nil {
			log.Warn().Err(err).Msg("command failed")
		}
	}
}
