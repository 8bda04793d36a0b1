// internal/service/store/domain/port/rules.go
package port

import (
	"context"

	"orchard/internal/service/store/domain"
)

// OrderRuleEngine 是订单业务规则校验的出站端口。
// 规则表达式可以独立于代码变更，由基础设施层加载和求值。
type OrderRuleEngine interface {
	// Validate 返回 nil 表示订单通过所有规则。
	Validate(ctx context.Context, order *domain.Order) error
}
