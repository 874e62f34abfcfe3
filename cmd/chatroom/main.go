package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mirror520/chatroom"
	"github.com/mirror520/chatroom/broker"
	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/message"
	"github.com/mirror520/chatroom/persistence"
	"github.com/mirror520/chatroom/pubsub"
	"github.com/mirror520/chatroom/pubsub/inproc"
	"github.com/mirror520/chatroom/pubsub/libp2p"
	"github.com/mirror520/chatroom/pubsub/nats"
	"github.com/mirror520/chatroom/registry/consul"
	"github.com/mirror520/chatroom/subscription"
	"github.com/mirror520/chatroom/topic"

	httpT "github.com/mirror520/chatroom/transport/http"
	pubsubT "github.com/mirror520/chatroom/transport/pubsub"
)

const startupNotice = "Servidor de chat iniciado!"

func init() {
	pubsub.AddFactory(conf.InProc, inproc.NewPubSub)
	pubsub.AddFactory(conf.NATS, nats.NewPubSub)
	pubsub.AddFactory(conf.Libp2p, libp2p.NewPubSub)
}

func main() {
	app := &cli.App{
		Name:  "chatroom",
		Usage: "topic-addressed publish/subscribe chat",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Usage:   "work directory holding config.yaml",
				EnvVars: []string{"CHATROOM_PATH"},
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "http port",
				Value:   8080,
				EnvVars: []string{"CHATROOM_HTTP_PORT"},
			},
			&cli.BoolFlag{
				Name:  "prod",
				Usage: "production logging",
			},
		},
		Before: conf.LoadEnv,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the broker and its HTTP API",
				Action: serve,
			},
			{
				Name:  "publish",
				Usage: "send one message over the configured transport",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "topic"},
					&cli.StringFlag{Name: "sender"},
					&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Required: true},
					&cli.StringFlag{Name: "priority", Usage: "normal or high"},
					&cli.BoolFlag{Name: "system", Usage: "publish on the system topic"},
				},
				Action: publish,
			},
			{
				Name:  "subscribe",
				Usage: "print messages received over the configured transport",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "filter", Aliases: []string{"f"}, Usage: "topic prefix, repeatable"},
				},
				Action: subscribe,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err.Error())
	}
}

func newLogger(prod bool) (*zap.Logger, error) {
	if prod {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// bootstrap loads the configuration and installs the global logger.
func bootstrap(cli *cli.Context) (*conf.Config, *zap.Logger, error) {
	cfg, err := conf.LoadConfig(conf.Path)
	if err != nil {
		return nil, nil, err
	}
	conf.ReplaceGlobals(cfg)

	log, err := newLogger(cli.Bool("prod"))
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(log)

	return cfg, log, nil
}

func serve(cli *cli.Context) error {
	cfg, log, err := bootstrap(cli)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cli.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	topics, err := persistence.NewTopicRepository(cfg.Persistence)
	if err != nil {
		return err
	}
	defer topics.Close()

	if err := chatroom.SeedTopics(topics, cfg.Topics, cfg.SystemTopic); err != nil {
		return err
	}

	engine := broker.NewEngine(broker.Options{
		QueueCapacity: cfg.Queue.Capacity,
		QueuePolicy:   cfg.Queue.Policy,
	})
	defer engine.Close()

	opts := []chatroom.Option{
		chatroom.WithSystemTopic(cfg.SystemTopic),
	}

	var ps pubsub.PubSub
	if cfg.Transports.PubSub.Enabled {
		ps, err = pubsub.NewPubSub(cfg.Transports.PubSub)
		if err != nil {
			return err
		}
		defer ps.Close()

		opts = append(opts, chatroom.WithTransport(ps))
	}

	var svc chatroom.Service
	{
		svc = chatroom.NewService(engine, topics, opts...)
		svc = chatroom.LoggingMiddleware(log)(svc)
	}

	endpoints := chatroom.MakeEndpoints(svc)

	if ps != nil {
		relay := pubsubT.NewRelay(ps, endpoints.Ingest, cfg.Transports.PubSub.Filters...)
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error(err.Error(), zap.String("component", "relay"))
			}
		}()
	}

	var srv *http.Server
	if httpCfg := cfg.Transports.HTTP; httpCfg.Enabled {
		r := httpT.NewRouter(log)
		httpT.SetRouter(r, endpoints, httpCfg.Internal.Health.Path)

		srv = &http.Server{
			Addr:    ":" + strconv.Itoa(httpCfg.Internal.Port),
			Handler: r,
		}

		go func() {
			log.Info("http server started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(err.Error(), zap.String("component", "http"))
				stop()
			}
		}()

		if cfg.Transports.Consul.Enabled {
			registry, err := consul.NewRegistry(cfg.Name, cfg.Transports.Consul, httpCfg)
			if err != nil {
				return err
			}

			if err := registry.Register(); err != nil {
				return err
			}
			defer registry.Deregister()
		}
	}

	if _, err := svc.System(ctx, startupNotice); err != nil {
		log.Warn(err.Error(), zap.String("component", "announce"))
	}

	<-ctx.Done()
	log.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(err.Error(), zap.String("component", "http"))
		}
	}

	return nil
}

func newRemoteService(cfg *conf.Config) (chatroom.Service, pubsub.PubSub, *broker.Engine, error) {
	if !cfg.Transports.PubSub.Enabled {
		return nil, nil, nil, errors.New("pubsub transport not enabled")
	}

	ps, err := pubsub.NewPubSub(cfg.Transports.PubSub)
	if err != nil {
		return nil, nil, nil, err
	}

	topics, err := persistence.NewTopicRepository(conf.Persistence{Driver: conf.InMem})
	if err != nil {
		ps.Close()
		return nil, nil, nil, err
	}

	if err := chatroom.SeedTopics(topics, cfg.Topics, cfg.SystemTopic); err != nil {
		ps.Close()
		return nil, nil, nil, err
	}

	engine := broker.NewEngine(broker.Options{
		QueueCapacity: cfg.Queue.Capacity,
		QueuePolicy:   cfg.Queue.Policy,
	})

	svc := chatroom.NewService(engine, topics,
		chatroom.WithTransport(ps),
		chatroom.WithSystemTopic(cfg.SystemTopic),
	)

	return svc, ps, engine, nil
}

func publish(cli *cli.Context) error {
	cfg, log, err := bootstrap(cli)
	if err != nil {
		return err
	}
	defer log.Sync()

	svc, ps, engine, err := newRemoteService(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()
	defer ps.Close()

	pub := chatroom.NewPublisher(svc, cli.String("sender"))

	if cli.Bool("system") {
		_, err = pub.System(cli.Context, cli.String("message"))
		return err
	}

	if cli.String("topic") == "" || pub.Sender == "" {
		return errors.New("topic and sender required")
	}

	if level := cli.String("priority"); level != "" {
		priority, err := message.ParsePriorityLevel(level)
		if err != nil {
			return err
		}

		meta := message.Priority{Level: priority}
		_, err = pub.PublishStructured(cli.Context, cli.String("topic"), cli.String("message"), meta)
		return err
	}

	_, err = pub.Publish(cli.Context, cli.String("topic"), cli.String("message"))
	return err
}

func subscribe(cli *cli.Context) error {
	cfg, log, err := bootstrap(cli)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cli.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, ps, engine, err := newRemoteService(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()
	defer ps.Close()

	sub, err := chatroom.NewSubscriber(svc, "cli")
	if err != nil {
		return err
	}
	defer sub.Close()

	filters := cli.StringSlice("filter")
	if len(filters) == 0 {
		topics, err := svc.Topics()
		if err != nil {
			return err
		}
		filters = topic.Names(topics)
	}

	for _, filter := range filters {
		if _, err := sub.Subscribe(filter); err != nil {
			return err
		}
	}

	if _, err := sub.SubscribeSystem(); err != nil {
		return err
	}
	filters = withSystemTopic(filters, svc.SystemTopic())

	relay := pubsubT.NewRelay(ps, chatroom.IngestEndpoint(svc), filters...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- relay.Run(ctx)
		stop()
	}()

	codec := message.NewCodec()
	for {
		env, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return <-errCh
			}
			return err
		}

		fmt.Println(codec.Render(env))
	}
}

// withSystemTopic appends the system topic unless a filter already covers it.
func withSystemTopic(filters []string, systemTopic string) []string {
	for _, filter := range filters {
		if subscription.Matches(systemTopic, filter) {
			return filters
		}
	}
	return append(filters, systemTopic)
}
