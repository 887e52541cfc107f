package deskrelay

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-deskrelay/config"
)

// Option 配置中继实例
type Option func(*settings) error

// settings 构建参数
type settings struct {
	cfg       *config.Config
	state     *config.PersistedState
	fxOptions []fx.Option
}

func defaultSettings() *settings {
	return &settings{cfg: config.NewConfig()}
}

// WithConfig 使用给定配置
func WithConfig(cfg *config.Config) Option {
	return func(s *settings) error {
		s.cfg = cfg
		return nil
	}
}

// WithConfigFile 从 YAML 文件加载配置
func WithConfigFile(path string) Option {
	return func(s *settings) error {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return err
		}
		s.cfg = cfg
		return nil
	}
}

// WithState 使用给定的持久化状态（节点、区域、规则、QoS 策略）
func WithState(state *config.PersistedState) Option {
	return func(s *settings) error {
		s.state = state
		return nil
	}
}

// WithStateFile 从 YAML 文件加载持久化状态
func WithStateFile(path string) Option {
	return func(s *settings) error {
		state, err := config.LoadState(path)
		if err != nil {
			return err
		}
		s.state = state
		return nil
	}
}

// WithFxOption 追加自定义 Fx 选项（测试注入、扩展模块）
func WithFxOption(opts ...fx.Option) Option {
	return func(s *settings) error {
		s.fxOptions = append(s.fxOptions, opts...)
		return nil
	}
}
