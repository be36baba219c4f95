package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/lumaclass/liveroom/internal/config"
	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/media"
	"github.com/lumaclass/liveroom/internal/room"
)

func main() {
	app := &cli.App{
		Name:        "liveroom-agent",
		Usage:       "Headless room participant publishing synthetic media",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Value: "localhost:3001",
				Usage: "host of the signaling server",
			},
			&cli.StringFlag{
				Name:     "lesson",
				Usage:    "lesson to join",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "id",
				Usage:    "participant id",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "participant display name",
				Value: "agent",
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "auth token passed in the X-Auth header",
				EnvVars: []string{"AUTH_TOKEN"},
			},
			&cli.BoolFlag{
				Name:  "instructor",
				Usage: "join as the lesson instructor",
			},
			&cli.BoolFlag{
				Name:  "start-stream",
				Usage: "request the stream start after joining (instructor only)",
			},
		},
		Action: startAgent,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("%v\n", err)
	}
}

func startAgent(c *cli.Context) error {
	log.Logger = log.Output(zerolog.NewConsoleWriter())
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cfg := config.NewConfig()
	rtcCfg, err := config.NewWebRTCConfig(cfg)
	if err != nil {
		return err
	}

	mediaCtl := media.NewController(media.NewSyntheticProvider())
	if err := mediaCtl.Acquire(true, true); err != nil {
		// a denied device is not fatal: join with whatever was acquired
		log.Error().Err(err).Str("service", "agent").Msg("media acquire failed, joining with devices off")
	}

	self := &core.Participant{
		ID:           core.ParticipantID(c.String("id")),
		Name:         c.String("name"),
		IsInstructor: c.Bool("instructor"),
		AudioEnabled: mediaCtl.Enabled(media.AudioKind),
		VideoEnabled: mediaCtl.Enabled(media.VideoKind),
	}

	header := http.Header{}
	if token := c.String("token"); token != "" {
		header.Set("X-Auth", token)
	}

	url := fmt.Sprintf("ws://%s/ws/%s", c.String("host"), c.String("lesson"))
	conn, err := room.Dial(url, header)
	if err != nil {
		return err
	}

	session := room.NewSession(room.SessionParams{
		LessonID:          core.LessonID(c.String("lesson")),
		Self:              self,
		Conn:              conn,
		Media:             mediaCtl,
		RTCConfig:         rtcCfg,
		Peer:              cfg.Peer,
		HeartbeatInterval: cfg.App.HeartbeatInterval,
		OnChatMessage: func(msg *core.ChatMessage) {
			log.Info().Str("service", "agent").
				Str("from", msg.ParticipantName).
				Msg(msg.Message)
		},
	})

	if err := session.Start(); err != nil {
		return err
	}

	if c.Bool("start-stream") {
		if err := session.StartStream(); err != nil {
			log.Error().Err(err).Str("service", "agent").Msg("start stream")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	session.Leave()

	return nil
}
