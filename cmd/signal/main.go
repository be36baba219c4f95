package main

import (
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"

	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/lumaclass/liveroom/internal/api"
	"github.com/lumaclass/liveroom/internal/config"
	"github.com/lumaclass/liveroom/internal/core"
	"github.com/lumaclass/liveroom/internal/notify"
	"github.com/lumaclass/liveroom/internal/signaling"
	"github.com/lumaclass/liveroom/internal/ws"
)

func main() {
	app := &cli.App{
		Name:        "liveroom-signal",
		Usage:       "Websocket signaling server for live lesson rooms",
		Description: "",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "env",
				Usage:    "environment: either 'development' or 'production'",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "listen IP and port, example: ':80' (default value) for listen on 0.0.0.0:80",
				Value: ":80",
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "postgres connection string",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "redis address for the signaling eventbus",
				EnvVars: []string{"REDIS_ADDR"},
				Value:   "localhost:6379",
			},
			&cli.StringFlag{
				Name:    "nats-addr",
				Usage:   "NATS address for LMS event notifications",
				EnvVars: []string{"NATS_ADDR"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "auth-addr",
				Usage:   "firebase auth service GRPC address",
				EnvVars: []string{"AUTH_SERVICE_ADDR"},
			},
		},
		Action: startSignal,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func startSignal(c *cli.Context) error {
	viper.Set("app.database_url", c.String("database-url"))
	viper.Set("app.redis_addr", c.String("redis-addr"))
	viper.Set("app.nats_addr", c.String("nats-addr"))
	viper.Set("app.auth_service_addr", c.String("auth-addr"))
	cfg := config.NewConfig()

	db, err := sqlx.Connect("pgx", cfg.App.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.App.RedisAddr,
		DB:   0,
	})

	eventbus := signaling.RedisPubSub(rdb)
	streams := core.NewLessonStreamsRepository(db)

	notifier, err := notify.New(cfg.App.NatsAddr)
	if err != nil {
		return err
	}

	router, err := signaling.NewRouter(eventbus)
	if err != nil {
		return err
	}

	rooms := ws.NewRooms(ws.RoomsParams{
		Publisher:         eventbus,
		Streams:           streams,
		Attendance:        core.NewAttendanceRepository(db),
		Notifier:          notifier,
		HeartbeatInterval: cfg.App.HeartbeatInterval,
		HeartbeatWindow:   cfg.App.HeartbeatWindow,
	})
	rooms.Bind(router)

	<-router.Start()
	rooms.Start()

	auth := api.NewFirebaseAuth(core.NewParticipantsRepository(db))
	auth.Addr = cfg.App.AuthServiceAddr

	wsApp := ws.New(ws.AppOptions{
		Env:        core.Environment(c.String("env")),
		Address:    c.String("address"),
		Publisher:  eventbus,
		Subscriber: eventbus,
		Streams:    streams,
		Auth:       auth.Middleware(),
	})

	return wsApp.Start()
}
