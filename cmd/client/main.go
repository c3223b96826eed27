package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/avdeyev/voicemesh/internal/client/media"
	"github.com/avdeyev/voicemesh/internal/client/mesh"
	"github.com/avdeyev/voicemesh/internal/client/peer"
	"github.com/avdeyev/voicemesh/internal/client/rtc"
	"github.com/avdeyev/voicemesh/internal/client/signaling"
	"github.com/avdeyev/voicemesh/internal/config"
	"github.com/avdeyev/voicemesh/internal/domain"
	"github.com/avdeyev/voicemesh/internal/protocol"
)

func main() {
	var (
		serverURL = pflag.String("server", "ws://localhost:8080/api/ws/signal", "signaling server URL")
		name      = pflag.String("name", "guest", "display name")
		admin     = pflag.Bool("admin", false, "join as admin")
		memberPw  = pflag.String("member-password", "", "member password")
		adminPw   = pflag.String("admin-password", "", "admin password")
	)
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	role := domain.RoleMember
	if *admin {
		role = domain.RoleAdmin
	}

	source, err := media.NewStaticSource("audio", "voicemesh")
	if err != nil {
		log.Fatal().Err(err).Msg("media source")
	}
	defer source.Close()
	sink := media.LogSink{}

	var (
		coord *mesh.Coordinator
		sc    *signaling.Client
	)

	handlers := signaling.Handlers{
		OnJoinOK: func(id domain.ParticipantID) {
			log.Info().Str("id", string(id)).Msg("joined call")
			factory := func(remote domain.ParticipantID) peer.TransportFactory {
				return rtc.NewFactory(rtc.DefaultConfig(), remote, source, sink)
			}
			coord = mesh.NewCoordinator(id, role, sc, factory, cfg.Timings())
		},
		OnAuthFailed: func(reason string) {
			log.Error().Str("reason", reason).Msg("join rejected")
			cancel()
		},
		OnExistingMembers: func(members []protocol.MemberInfo) {
			if coord != nil {
				coord.HandleExistingMembers(members)
			}
		},
		OnMemberJoined: func(m protocol.MemberInfo) {
			if coord != nil {
				coord.HandleMemberJoined(m)
			}
		},
		OnMemberLeft: func(id domain.ParticipantID, name string) {
			log.Info().Str("name", name).Msg("member left")
			if coord != nil {
				coord.HandleMemberLeft(id)
			}
		},
		OnOffer: func(senderID domain.ParticipantID, senderName, sdp string) {
			if coord != nil {
				coord.HandleOffer(senderID, senderName, sdp)
			}
		},
		OnAnswer: func(senderID domain.ParticipantID, sdp string) {
			if coord != nil {
				coord.HandleAnswer(senderID, sdp)
			}
		},
		OnCandidate: func(senderID domain.ParticipantID, c protocol.Candidate) {
			if coord != nil {
				coord.HandleCandidate(senderID, c)
			}
		},
		OnParticipantMuted: func(id domain.ParticipantID, muted bool) {
			log.Info().Str("peer", string(id)).Bool("muted", muted).Msg("participant mute state")
		},
		OnAdminMute: func(n protocol.AdminNotice, muted bool) {
			log.Info().Str("admin", n.AdminName).Bool("muted", muted).Msg("admin mute command")
			if coord != nil {
				coord.HandleAdminMute(muted)
			}
		},
	}

	sc, err = signaling.Dial(ctx, *serverURL, handlers)
	if err != nil {
		log.Fatal().Err(err).Msg("dial signaling server")
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := sc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("signaling connection lost")
		}
	}()

	// Local media must be ready before any offer goes out.
	<-source.Ready()
	if err := sc.SendJoin(*name, role, *memberPw, *adminPw); err != nil {
		log.Fatal().Err(err).Msg("send join")
	}

	select {
	case <-ctx.Done():
	case <-runDone:
	}

	// Tear everything down before announcing departure, so no handshake
	// traffic is emitted after the leave.
	if coord != nil {
		coord.Close()
	}
	source.Close()
	_ = sc.SendLeave()
	sc.Close()
	<-runDone
	log.Info().Msg("left call")
}
