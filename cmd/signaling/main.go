package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"rollduel/internal/config"
	"rollduel/internal/signaling"
)

func main() {
	// 命令行参数
	address := flag.String("addr", ":8080", "信令服务监听地址")
	flag.Parse()

	env, err := config.ParseEnv()
	if err != nil {
		log.Fatalf("读取环境变量失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := signaling.NewServer(ctx, env.SignalSecret, signaling.DefaultGrace)

	log.Println("========================================")
	log.Println("  rollduel 信令服务")
	log.Println("========================================")
	log.Printf("监听地址: %s", *address)
	log.Printf("房间默认人数: %d, 上限 %d", signaling.DefaultCapacity, signaling.MaxCapacity)
	log.Printf("断线保留时间: %s", signaling.DefaultGrace)
	log.Println("========================================")
	log.Println("按 Ctrl+C 停止服务")

	if err := srv.ListenAndServe(ctx, *address); err != nil {
		log.Fatalf("信令服务异常退出: %v", err)
	}
	log.Println("信令服务已关闭")
}
