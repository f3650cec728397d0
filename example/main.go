package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/wsgate"
	"github.com/tokmz/wsgate/pkg/config"
	"github.com/tokmz/wsgate/pkg/logger"
	"github.com/tokmz/wsgate/pkg/tracing"
)

// ChatRequest 聊天请求
type ChatRequest struct {
	Content string `json:"content"`
}

// ChatNotice 聊天通知
type ChatNotice struct {
	From    string `json:"from"`
	Content string `json:"content"`
	SentAt  int64  `json:"sent_at"`
}

func main() {
	log, err := logger.NewWithOptions(
		logger.WithLevel(logger.InfoLevel),
		logger.WithFormat(logger.JSONFormat),
		logger.WithConsoleOutput(),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 配置：支持热更新，运行期切换升级闸口
	cfg := config.New(
		config.WithConfigFile("config.yaml"),
		config.WithDefaults(map[string]any{
			"server.addr":                   ":8080",
			"ws.serverHeartbeatInterval":    "30s",
			"ws.enableServerHeartbeatCheck": true,
			"ws.enableUpgradeGate":          true,
			"ws.maxConnections":             10000,
		}),
		config.WithAutoWatch(true),
	)
	if err := cfg.Load(); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		log.Fatal("load config failed", zap.Error(err))
	}

	// 链路追踪
	if _, err := tracing.NewTracerProvider(&tracing.Config{
		ServiceName:  "wsgate-example",
		ExporterType: "stdout",
		SamplingRate: 1.0,
	}); err != nil {
		log.Fatal("init tracing failed", zap.Error(err))
	}

	opts := []wsgate.Option{
		wsgate.WithMaxConnections(cfg.GetInt("ws.maxConnections")),
		wsgate.WithLogger(log),
	}
	if cfg.GetBool("ws.enableServerHeartbeatCheck") {
		opts = append(opts, wsgate.WithHeartbeat(cfg.GetDuration("ws.serverHeartbeatInterval")))
	}

	sup, err := wsgate.New(opts...)
	if err != nil {
		log.Fatal("create supervisor failed", zap.Error(err))
	}

	group := wsgate.NewGroup("chat").
		OnConnect("HandleConnection", func(c *wsgate.Conn, r *http.Request) (any, error) {
			log.Info("client joined",
				zap.String("conn_id", c.ID),
				zap.String("remote", r.RemoteAddr),
			)
			return nil, nil
		}).
		OnMessage("chat.send", "SendMessage", func(c *wsgate.Conn, msg *wsgate.Message) (any, error) {
			var req ChatRequest
			if err := msg.Unmarshal(&req); err != nil {
				return nil, err
			}
			return &ChatNotice{
				From:    c.ID,
				Content: req.Content,
				SentAt:  time.Now().Unix(),
			}, nil
		}).
		Broadcast("SendMessage").
		OnDisconnect("HandleDisconnect", func(c *wsgate.Conn, reason error) (any, error) {
			log.Info("client left",
				zap.String("conn_id", c.ID),
				zap.Error(reason),
			)
			return nil, nil
		})

	if err := sup.RegisterGroup(group); err != nil {
		log.Fatal("register group failed", zap.Error(err))
	}

	// 升级闸口：校验 token，并跟随配置热切换
	predicate := func(ctx context.Context, r *http.Request) (bool, error) {
		return r.URL.Query().Get("token") != "", nil
	}
	applyGate := func() {
		if cfg.GetBool("ws.enableUpgradeGate") {
			sup.SetUpgradePredicate(predicate)
		} else {
			sup.SetUpgradePredicate(nil)
		}
	}
	applyGate()
	cfg.OnChange(applyGate)

	if err := sup.Run(); err != nil {
		log.Fatal("run supervisor failed", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/ws", sup.GinHandler())

	srv := &http.Server{
		Addr:    cfg.GetString("server.addr"),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
		_ = sup.Shutdown(shutdownCtx)
		return tracing.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", zap.Error(err))
	}
}
