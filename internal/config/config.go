package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// 引擎可接受的范围
const (
	MaxTickRate         = 240
	MaxPredictionWindow = 64
	MaxInputDelay       = 30
)

// 默认参数
const (
	DefaultNumPlayers          = 2
	DefaultTickRate            = 60
	DefaultMaxPredictionWindow = 8
	DefaultInputDelay          = 2
	DefaultDisconnectTimeout   = 2 * time.Second
)

var (
	ErrInvalidNumPlayers        = errors.New("玩家数必须为正数")
	ErrInvalidTickRate          = errors.New("帧率不被引擎接受")
	ErrInvalidPredictionWindow  = errors.New("预测窗口无效")
	ErrInvalidInputDelay        = errors.New("输入延迟无效")
	ErrInvalidDisconnectTimeout = errors.New("断线超时必须为正数")
	ErrInvalidPort              = errors.New("端口必须在 1 到 65535 之间")
)

// ValidatePort 检查命令行给出的本地端口
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return nil
}

// SessionConfig 会话参数，会话开始后不可修改
type SessionConfig struct {
	NumPlayers          int
	TickRate            int
	MaxPredictionWindow int
	InputDelay          int
	DisconnectTimeout   time.Duration
}

// Default 返回参考部署使用的配置
func Default() SessionConfig {
	return SessionConfig{
		NumPlayers:          DefaultNumPlayers,
		TickRate:            DefaultTickRate,
		MaxPredictionWindow: DefaultMaxPredictionWindow,
		InputDelay:          DefaultInputDelay,
		DisconnectTimeout:   DefaultDisconnectTimeout,
	}
}

// Validate 校验参数
func (c SessionConfig) Validate() error {
	if c.NumPlayers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidNumPlayers, c.NumPlayers)
	}
	if c.TickRate <= 0 || c.TickRate > MaxTickRate {
		return fmt.Errorf("%w: %d (1-%d)", ErrInvalidTickRate, c.TickRate, MaxTickRate)
	}
	if c.MaxPredictionWindow <= 0 || c.MaxPredictionWindow > MaxPredictionWindow {
		return fmt.Errorf("%w: %d (1-%d)", ErrInvalidPredictionWindow, c.MaxPredictionWindow, MaxPredictionWindow)
	}
	if c.InputDelay < 0 || c.InputDelay > MaxInputDelay {
		return fmt.Errorf("%w: %d (0-%d)", ErrInvalidInputDelay, c.InputDelay, MaxInputDelay)
	}
	if c.DisconnectTimeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDisconnectTimeout, c.DisconnectTimeout)
	}
	return nil
}

// TickDuration 每帧时长
func (c SessionConfig) TickDuration() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Env 可由环境变量覆盖的参数
type Env struct {
	TickRate            int           `env:"ROLLDUEL_TICK_RATE" envDefault:"60"`
	MaxPredictionWindow int           `env:"ROLLDUEL_MAX_PREDICTION" envDefault:"8"`
	InputDelay          int           `env:"ROLLDUEL_INPUT_DELAY" envDefault:"2"`
	DisconnectTimeout   time.Duration `env:"ROLLDUEL_DISCONNECT_TIMEOUT" envDefault:"2s"`
	SignalSecret        string        `env:"ROLLDUEL_SIGNAL_SECRET" envDefault:"rollduel-dev-secret-change-in-production"`
}

// ParseEnv 读取环境变量
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Load 从环境变量构造并校验会话配置
func Load(numPlayers int) (SessionConfig, error) {
	e, err := ParseEnv()
	if err != nil {
		return SessionConfig{}, err
	}
	cfg := e.SessionConfig(numPlayers)
	if err := cfg.Validate(); err != nil {
		return SessionConfig{}, err
	}
	return cfg, nil
}

// SessionConfig 转换为会话配置
func (e Env) SessionConfig(numPlayers int) SessionConfig {
	return SessionConfig{
		NumPlayers:          numPlayers,
		TickRate:            e.TickRate,
		MaxPredictionWindow: e.MaxPredictionWindow,
		InputDelay:          e.InputDelay,
		DisconnectTimeout:   e.DisconnectTimeout,
	}
}
