// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/jacl-coder/CyberChess-Server/config"
	"github.com/jacl-coder/CyberChess-Server/internal/replay"
	"github.com/jacl-coder/CyberChess-Server/internal/scenario"
	"github.com/jacl-coder/CyberChess-Server/pkg/db"
	"github.com/jacl-coder/CyberChess-Server/pkg/logger"
)

// resetSQL 删除回放存储的所有表
const resetSQL = `
DROP TABLE IF EXISTS match_moves CASCADE;
DROP TABLE IF EXISTS matches CASCADE;
`

const toolTimeout = 30 * time.Second

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	action := flag.String("action", "help", "操作类型: reset, init, list, show, scenario, help")
	id := flag.String("id", "", "对局ID (show)")
	limit := flag.Int("limit", 20, "列出的对局数量 (list)")
	file := flag.String("file", "", "场景文件 (scenario)")
	flag.Parse()

	if *action == "help" {
		showHelp()
		return
	}

	// 加载配置
	if err := config.LoadConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	logger.Init(config.GlobalConfig.Server.LogLevel)
	defer logger.Sync()

	// 场景校验不需要数据库
	if *action == "scenario" {
		checkScenario(*file)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	conn, err := db.OpenPostgres(ctx, config.GlobalConfig.Database)
	if err != nil {
		logger.Fatal("初始化PostgreSQL失败", "error", err)
	}
	defer db.ClosePostgres(conn)

	switch *action {
	case "reset":
		if _, err := conn.ExecContext(ctx, resetSQL); err != nil {
			logger.Fatal("重置数据库失败", "error", err)
		}
		logger.Info("数据库重置完成")
	case "init":
		if err := db.Migrate(ctx, conn); err != nil {
			logger.Fatal("初始化数据库失败", "error", err)
		}
		logger.Info("数据库初始化完成", "tables", []string{"matches", "match_moves"})
	case "list":
		matches, err := replay.NewStore(conn, logger.L()).RecentMatches(ctx, *limit)
		if err != nil {
			logger.Fatal("查询对局失败", "error", err)
		}
		for _, m := range matches {
			fmt.Printf("%s\t%s\t%-8s\t%-18s\t%d回合\t%.1f\n",
				m.EndedAt.Format(time.RFC3339), m.SessionID, m.Winner, m.EndReason, m.Rounds, m.FinalScores.Overall)
		}
	case "show":
		if *id == "" {
			logger.Fatal("缺少 -id 参数")
		}
		rec, err := replay.NewStore(conn, logger.L()).LoadMatch(ctx, *id)
		if err != nil {
			logger.Fatal("读取对局失败", "error", err)
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			logger.Fatal("序列化对局失败", "error", err)
		}
		fmt.Println(string(out))
	default:
		logger.Fatal("未知操作", "action", *action)
	}
}

// checkScenario 校验场景文件并打印摘要
func checkScenario(path string) {
	if path == "" {
		path = config.GlobalConfig.Game.ScenarioFile
	}
	catalog := scenario.Default()
	if path != "" {
		var err error
		if catalog, err = scenario.LoadFile(path); err != nil {
			logger.Fatal("场景文件无效", "file", path, "error", err)
		}
	}
	for _, sc := range catalog.List() {
		fmt.Printf("%d\t%s\t%d回合\t节点%d\t漏洞%d\n",
			sc.ID, sc.Name, sc.MaxRounds, len(sc.Infrastructure), len(sc.Vulnerabilities))
	}
}

// showHelp 显示帮助信息
func showHelp() {
	fmt.Println(`CyberChess 数据库管理工具

用法:
  go run ./cmd/dbtool -action=<操作> [-config=<配置文件>]

操作:
  reset     删除回放存储的所有表
  init      创建回放存储表结构
  list      列出最近结束的对局 (-limit)
  show      输出一场对局的完整记录 (-id)
  scenario  校验场景文件 (-file，默认使用配置中的 scenario_file)
  help      显示此帮助信息`)
}
