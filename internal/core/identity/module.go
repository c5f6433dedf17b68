package identity

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-kad/config"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Provider Provider
}

// Module 返回身份 Fx 模块
//
// 未提供统一配置时使用随机 ID。OnStop 释放主机锁。
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideServices 按配置创建 Provider
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	mode := config.IdentityRandom
	if input.UnifiedCfg != nil {
		mode = input.UnifiedCfg.Node.Identity
	}
	p, err := FromMode(mode)
	if err != nil {
		return ModuleOutput{}, err
	}
	logger.Info("节点身份就绪", "id", p.NodeID().ShortString(), "deterministic", p.Deterministic())
	return ModuleOutput{Provider: p}, nil
}

func registerLifecycle(lc fx.Lifecycle, p Provider) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return p.Release()
		},
	})
}
