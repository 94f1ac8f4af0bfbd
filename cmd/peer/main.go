package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rollduel/internal/client"
	"rollduel/internal/config"
	"rollduel/internal/headless"
	"rollduel/internal/negotiate"
	"rollduel/pkg/ai"
	"rollduel/pkg/core"

	"github.com/hajimehoshi/ebiten/v2"
)

func main() {
	// 命令行参数
	port := flag.Int("port", 7000, "本地 UDP/KCP 端口")
	players := flag.String("players", "", "直连模式的槽位列表，逗号分隔，例如 localhost,203.0.113.5:9000")
	room := flag.String("room", "", "信令房间地址，例如 ws://127.0.0.1:8080/next_2")
	proto := flag.String("proto", "udp", "直连传输协议: udp 或 kcp")
	headlessMode := flag.Bool("headless", false, "无窗口运行，使用脚本输入")
	syncTest := flag.Bool("synctest", false, "本地确定性自检，不连接网络")
	discoveryTimeout := flag.Duration("discovery-timeout", 30*time.Second, "等待对端的最长时间，0 表示一直等待")
	bot := flag.Bool("bot", false, "无窗口模式下由 AI 控制本地玩家")
	ticks := flag.Int("ticks", 0, "无窗口或自检模式运行的帧数，0 表示一直运行")
	flag.Parse()

	if err := config.ValidatePort(*port); err != nil {
		log.Fatalf("参数无效: %v", err)
	}

	cfg, err := config.Load(core.NumPlayers)
	if err != nil {
		log.Fatalf("配置无效: %v", err)
	}

	if *syncTest {
		if err := headless.SyncTest(cfg, *ticks); err != nil {
			log.Fatalf("确定性自检失败: %v", err)
		}
		log.Printf("确定性自检通过, 回滚距离 %d", cfg.MaxPredictionWindow)
		return
	}

	n, err := newNegotiator(*port, *players, *room, negotiate.Proto(*proto))
	if err != nil {
		log.Fatalf("创建协商器失败: %v", err)
	}

	if *headlessMode {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		opts := headless.Options{DiscoveryTimeout: *discoveryTimeout, Ticks: *ticks, Seed: time.Now().UnixNano()}
		if *bot {
			opts.Bot = &ai.AIConfigNormal
		}
		if _, err := headless.Run(ctx, cfg, n, opts); err != nil {
			log.Fatalf("会话结束: %v", err)
		}
		return
	}

	game := client.NewGame(cfg, n, *discoveryTimeout)
	defer game.Close()

	// 设置窗口选项
	ebiten.SetWindowSize(client.ScreenWidth, client.ScreenHeight)
	ebiten.SetWindowTitle("rollduel")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeDisabled)
	ebiten.SetTPS(cfg.TickRate)

	// 运行游戏
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}

// newNegotiator -room 优先，否则按 -players 直连
func newNegotiator(port int, players, room string, proto negotiate.Proto) (negotiate.Negotiator, error) {
	if room != "" {
		return negotiate.NewRendezvous(context.Background(), room, core.NumPlayers)
	}
	var descriptors []string
	if players != "" {
		descriptors = strings.Split(players, ",")
	}
	return negotiate.NewDirect(port, descriptors, core.NumPlayers, proto)
}
