package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/debateroom/go/clients/room_api_client"
	"github.com/mcdev12/debateroom/go/internal/auth"
	"github.com/mcdev12/debateroom/go/internal/config"
	"github.com/mcdev12/debateroom/go/internal/models"
	"github.com/mcdev12/debateroom/go/internal/room/gateway"
	"github.com/mcdev12/debateroom/go/internal/room/mirror"
	"github.com/mcdev12/debateroom/go/internal/room/notify"
	"github.com/mcdev12/debateroom/go/internal/room/snapshot"
	"github.com/mcdev12/debateroom/go/internal/room/view"
	"github.com/mcdev12/debateroom/go/internal/stream"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Session *auth.Session
	API     *room_api_client.RoomApiClient
	Notices *notify.Channel
	Mirror  *mirror.Publisher // nil unless enabled
	View    *view.View
	Gateway *gateway.Service // nil unless enabled
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Session → API client → snapshot loader / mutation flows → view → gateway

	session := auth.NewSession(cfg.API.Token)
	api := room_api_client.NewRoomApiClient(cfg.API.BaseURL, session)
	api.SetTimeout(cfg.API.Timeout)

	notices := notify.NewChannel(64)
	session.OnExpire(func() {
		notices.Notify(notify.Notice{Level: notify.LevelError, Message: "Your session expired. Sign in again."})
	})

	var pub *mirror.Publisher
	if cfg.Mirror.Enabled {
		jsCfg := mirror.DefaultJetStreamConfig()
		jsCfg.URL = cfg.Mirror.NATSURL
		jsCfg.StreamName = cfg.Mirror.StreamName
		jsCfg.SubjectPrefix = cfg.Mirror.SubjectPrefix

		var err error
		pub, err = mirror.NewPublisher(jsCfg)
		if err != nil {
			return nil, fmt.Errorf("setup mirror: %w", err)
		}
		if err := pub.Start(ctx); err != nil {
			return nil, err
		}
	}

	viewCfg := view.Config{
		Loader: snapshot.NewLoader(api, snapshot.NewCache(cfg.Snapshot.CacheTTL, nil)),
		API:    api,
		Author: models.Author{
			ParticipantID: cfg.Profile.ParticipantID,
			Nickname:      cfg.Profile.Nickname,
			AvatarURL:     cfg.Profile.AvatarURL,
		},
		Stream: stream.Options{
			BaseURL:       cfg.API.BaseURL,
			Disabled:      cfg.Stream.Disabled,
			Tokens:        session,
			Transport:     newTransport(cfg.Stream.Transport),
			RetryInterval: cfg.Stream.RetryInterval,
		},
		Notifier: notices,
	}
	if pub != nil {
		viewCfg.Mirror = pub
	}

	services := &Services{
		Session: session,
		API:     api,
		Notices: notices,
		Mirror:  pub,
		View:    view.New(ctx, viewCfg),
	}

	if cfg.Gateway.Enabled {
		services.Gateway = gateway.NewService(gateway.DefaultConnectionConfig(), services.View, notices.Notices())
	}

	return services, nil
}

func newTransport(kind string) stream.Transport {
	if kind == config.TransportWebSocket {
		return stream.NewWebSocketTransport()
	}
	return stream.NewSSETransport()
}

// logNotices drains notices when no UI gateway is running
func logNotices(ctx context.Context, notices <-chan notify.Notice) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notices:
			log.Info().
				Str("level", string(n.Level)).
				Str("path", n.Path).
				Time("at", n.At.Truncate(time.Second)).
				Msg(n.Message)
		}
	}
}

func (s *Services) Close() {
	s.View.Close()
	if s.Mirror != nil {
		if err := s.Mirror.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop mirror")
		}
	}
}
