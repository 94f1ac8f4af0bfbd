// Package headless 无窗口运行会话：脚本或 AI 输入驱动，用于联机冒烟测试和确定性自检
package headless

import (
	"context"
	"errors"
	"log"
	"time"

	"rollduel/internal/config"
	"rollduel/internal/negotiate"
	"rollduel/internal/rollback"
	"rollduel/internal/session"
	"rollduel/pkg/ai"
	"rollduel/pkg/core"

	"golang.org/x/sync/errgroup"
)

// StatsInterval 运行中打印进度的间隔
const StatsInterval = 5 * time.Second

// 脚本输入：每 30 帧换一个方向，每 20 帧开火一次
var scriptDirections = []core.Input{
	{Right: true},
	{Down: true},
	{Left: true},
	{Up: true},
	{Right: true, Down: true},
	{},
}

// ScriptedInput 槽位在第 frame 帧的脚本输入
func ScriptedInput(slot int, frame int32) core.Input {
	step := int(frame)/30 + slot
	in := scriptDirections[step%len(scriptDirections)]
	in.Fire = (int(frame)+slot*7)%20 == 0
	return in
}

// ScriptedSampler 按采样次数生成脚本输入
func ScriptedSampler() session.SamplerFunc {
	counts := make(map[int]int32)
	return func(slot int) core.Input {
		in := ScriptedInput(slot, counts[slot])
		counts[slot]++
		return in
	}
}

// Stats 运行统计
type Stats struct {
	Advanced  int
	Stalls    int
	Rollbacks int
	Checksum  uint64
}

// Options 运行参数
type Options struct {
	DiscoveryTimeout time.Duration // 0 表示一直等待对端
	Ticks            int           // 推进的帧数，0 表示直到 ctx 取消
	Bot              *ai.AIConfig  // 非空时由 AI 控制本地槽位，否则使用脚本输入
	Seed             int64
}

// Run 等待对端后按帧率运行会话
//
// 在线玩家不足导致的结束不算错误。
func Run(ctx context.Context, cfg config.SessionConfig, n negotiate.Negotiator, opts Options) (Stats, error) {
	defer n.Close()

	waitCtx := ctx
	if opts.DiscoveryTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.DiscoveryTimeout)
		defer cancel()
	}
	if err := negotiate.Wait(waitCtx, n, cfg.TickDuration()); err != nil {
		return Stats{}, err
	}

	res, err := n.Result()
	if err != nil {
		return Stats{}, err
	}
	sim := core.NewGame(cfg.NumPlayers)
	var sampler session.InputSampler = ScriptedSampler()
	if opts.Bot != nil {
		sampler = ai.NewBots(sim, opts.Bot, opts.Seed)
	}
	orch, err := session.Start(cfg, res.Participants, res.Transport, sim, sampler)
	if err != nil {
		return Stats{}, err
	}
	defer orch.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stats Stats
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return orch.Run(gctx, func(ev session.Event) {
			switch ev.Kind {
			case session.EventAdvanced:
				stats.Advanced++
				if ev.Rollback > 0 {
					stats.Rollbacks++
				}
				if opts.Ticks > 0 && stats.Advanced >= opts.Ticks {
					cancel()
				}
			case session.EventStalled:
				stats.Stalls++
			case session.EventDisconnected:
				log.Printf("槽位 %d 断开 (帧 %d)", ev.Slot, ev.Frame)
			}
		})
	})
	g.Go(func() error {
		ticker := time.NewTicker(StatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				log.Printf("帧 %d, 已确认 %d, 在线 %d", orch.Frame(), orch.ConfirmedFrame(), orch.Active())
			}
		}
	})

	err = g.Wait()
	stats.Checksum = sim.Checksum()
	log.Printf("运行结束: 推进 %d 帧, 回滚 %d 次, 等待 %d 帧, 校验和 %016x",
		stats.Advanced, stats.Rollbacks, stats.Stalls, stats.Checksum)
	if errors.Is(err, session.ErrSessionEnded) {
		return stats, nil
	}
	return stats, err
}

// SyncTest 本地反复回滚重算，校验模拟的确定性
func SyncTest(cfg config.SessionConfig, frames int) error {
	if frames <= 0 {
		frames = 10 * cfg.TickRate
	}
	script := func(frame int32) []core.Input {
		inputs := make([]core.Input, cfg.NumPlayers)
		for slot := range inputs {
			inputs[slot] = ScriptedInput(slot, frame)
		}
		return inputs
	}
	return rollback.RunSyncTest(core.NewGame(cfg.NumPlayers), frames, cfg.MaxPredictionWindow, script)
}
