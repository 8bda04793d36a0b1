// internal/service/store/infrastructure/adapter/rules_cel_adapter.go
package adapter

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"orchard/internal/service/store/domain"
)

// Rule 是一条可配置的下单校验规则，表达式求值为 true 表示通过。
type Rule struct {
	Name string
	Expr string
}

// DefaultRules 是内置的风控兜底规则。
// 规则作为表达式存在，调整阈值不需要改代码。
var DefaultRules = []Rule{
	{Name: "quantity_limit", Expr: "quantity > 0 && quantity <= 100"},
	{Name: "amount_limit", Expr: "amount > 0.0 && amount <= 100000.0"},
	{Name: "supported_currency", Expr: "currency in ['USD', 'EUR', 'CNY']"},
	{Name: "known_customer", Expr: "userId != ''"},
}

type compiledRule struct {
	name    string
	program cel.Program
}

// CelRuleEngine 实现了 port.OrderRuleEngine 接口，用 CEL 表达式校验订单。
type CelRuleEngine struct {
	rules []compiledRule
}

// NewCelRuleEngine 编译规则表达式。表达式在启动时编译一次，
// 求值路径上不再有解析开销。
func NewCelRuleEngine(rules []Rule) (*CelRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("userId", cel.StringType),
		cel.Variable("productId", cel.StringType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	engine := &CelRuleEngine{}
	for _, rule := range rules {
		ast, issues := env.Compile(rule.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile rule %s: %w", rule.Name, issues.Err())
		}
		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("build program for rule %s: %w", rule.Name, err)
		}
		engine.rules = append(engine.rules, compiledRule{name: rule.Name, program: program})
	}
	return engine, nil
}

// Validate 逐条求值，第一条不通过的规则即终止。
func (e *CelRuleEngine) Validate(_ context.Context, order *domain.Order) error {
	input := map[string]interface{}{
		"userId":    order.UserID,
		"productId": order.ProductID,
		"quantity":  int64(order.Quantity),
		"amount":    order.Amount,
		"currency":  order.Currency,
	}
	for _, rule := range e.rules {
		out, _, err := rule.program.Eval(input)
		if err != nil {
			return fmt.Errorf("evaluate rule %s: %w", rule.name, err)
		}
		passed, ok := out.Value().(bool)
		if !ok {
			return fmt.Errorf("rule %s did not evaluate to bool", rule.name)
		}
		if !passed {
			return fmt.Errorf("rule %s violated: %w", rule.name, domain.ErrOrderValidationFailed)
		}
	}
	return nil
}
