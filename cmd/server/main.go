// main.go

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/jacl-coder/CyberChess-Server/config"
	"github.com/jacl-coder/CyberChess-Server/internal/engine"
	"github.com/jacl-coder/CyberChess-Server/internal/game"
	"github.com/jacl-coder/CyberChess-Server/internal/gateway"
	"github.com/jacl-coder/CyberChess-Server/internal/lobby"
	"github.com/jacl-coder/CyberChess-Server/internal/replay"
	"github.com/jacl-coder/CyberChess-Server/internal/scenario"
	"github.com/jacl-coder/CyberChess-Server/internal/scoring"
	"github.com/jacl-coder/CyberChess-Server/pkg/db"
	"github.com/jacl-coder/CyberChess-Server/pkg/logger"
)

// lobbyRequestsPerMinute 大厅接口每个IP每分钟请求上限
const lobbyRequestsPerMinute = 120

// authTokenTTL 调试令牌有效期
const authTokenTTL = 24 * time.Hour

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	issueToken := flag.String("issue-token", "", "为指定用户签发调试令牌后退出")
	flag.Parse()

	// 加载配置
	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := &config.GlobalConfig

	logger.Init(cfg.Server.LogLevel)
	defer logger.Sync()

	if *issueToken != "" {
		printToken(cfg, *issueToken)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("服务器异常退出", "error", err)
	}
	logger.Info("服务器已安全关闭")
}

// run 组装各组件并运行到 ctx 结束
func run(ctx context.Context, cfg *config.Config) error {
	var (
		pg  *sql.DB
		rdb *redis.Client
		err error
	)

	// 初始化数据库连接
	if cfg.Database.Enabled {
		if pg, err = db.OpenPostgres(ctx, cfg.Database); err != nil {
			return err
		}
		defer db.ClosePostgres(pg)
		if err := db.Migrate(ctx, pg); err != nil {
			return err
		}
	}

	// 初始化Redis连接
	if cfg.Redis.Enabled {
		if rdb, err = db.OpenRedis(ctx, cfg.Redis); err != nil {
			return err
		}
		defer db.CloseRedis(rdb)
	}

	catalog, err := loadScenarios(cfg.Game.ScenarioFile)
	if err != nil {
		return err
	}

	log := logger.L()
	eng := engine.NewEngine(catalog, scoring.NewService(log.Named("scoring")), engine.WithLogger(log.Named("engine")))

	// 对局结束记录
	recorders := []replay.Recorder{replay.NewLogRecorder(log.Named("replay"))}
	var (
		store     *replay.Store
		publisher *replay.Publisher
	)
	if pg != nil {
		store = replay.NewStore(pg, log.Named("replay"))
		recorders = append(recorders, store)
	}
	if rdb != nil {
		publisher = replay.NewPublisher(rdb)
		recorders = append(recorders, publisher)
	}

	chatLimiter := gateway.NewRateLimiter(cfg.Game.ChatPerMinute, time.Minute)
	opts := []game.Option{
		game.WithRecorder(replay.NewMulti(recorders...)),
		game.WithLimiter(chatLimiter),
		game.WithLogger(log.Named("room")),
	}
	if publisher != nil {
		opts = append(opts, game.WithRoomCache(publisher))
	}

	hub := game.NewHub(log.Named("hub"))
	manager := game.NewManager(eng, hub, game.SettingsFrom(cfg), opts...)

	var auth *gateway.Authenticator
	if cfg.Auth.JWTSecret != "" {
		auth = gateway.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		logger.Warn("未配置 jwt_secret，接受匿名连接")
	}
	gameServer := game.NewGameServer(cfg, hub, manager, auth, log.Named("game"))

	// 大厅接口
	lobbyOpts := []lobby.Option{lobby.WithLogger(log.Named("lobby"))}
	if store != nil {
		lobbyOpts = append(lobbyOpts, lobby.WithMatchHistory(store), lobby.WithMatchLoader(store))
	} else if publisher != nil {
		lobbyOpts = append(lobbyOpts, lobby.WithMatchHistory(publisher))
	}
	if publisher != nil {
		lobbyOpts = append(lobbyOpts, lobby.WithRoomCache(publisher))
	}
	lobbyLimiter := gateway.NewRateLimiter(lobbyRequestsPerMinute, time.Minute)
	lobbyCache := gateway.NewResponseCache(map[string]time.Duration{
		"/scenarios": 10 * time.Minute,
		"/matches/":  5 * time.Minute,
	})
	lobbyServer := lobby.NewServer(cfg.Server.LobbyPort,
		lobby.NewHandler(manager, eng, catalog, lobbyOpts...), lobbyLimiter, lobbyCache, log.Named("lobby"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gameServer.Run(gctx) })
	g.Go(func() error { return lobbyServer.Run(gctx) })
	g.Go(func() error { return chatLimiter.Run(gctx) })
	g.Go(func() error { return lobbyLimiter.Run(gctx) })
	g.Go(func() error { return lobbyCache.Run(gctx) })

	logger.Info("所有服务已启动",
		"gamePort", cfg.Server.GamePort,
		"lobbyPort", cfg.Server.LobbyPort,
		"scenarios", len(catalog.List()),
	)

	<-gctx.Done()
	logger.Info("接收到关闭信号，正在关闭服务器...")
	return g.Wait()
}

// loadScenarios 读取场景文件，未配置时使用内置场景
func loadScenarios(path string) (*scenario.Catalog, error) {
	if path == "" {
		return scenario.Default(), nil
	}
	catalog, err := scenario.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("加载场景失败: %w", err)
	}
	return catalog, nil
}

// printToken 签发调试令牌
func printToken(cfg *config.Config, userID string) {
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("未配置 jwt_secret，无法签发令牌")
	}
	auth := gateway.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	token, err := auth.Issue(userID, userID, authTokenTTL)
	if err != nil {
		logger.Fatal("签发令牌失败", "error", err)
	}
	fmt.Println(token)
}
