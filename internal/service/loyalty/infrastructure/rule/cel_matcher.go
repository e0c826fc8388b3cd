package rule

import (
	"context"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"loyalty/internal/service/loyalty/domain"
)

// CELMatcher 是 port.ConditionMatcher 的一个具体实现。
// 条件上的 TraitExpression 是一段 CEL 表达式，例如
// `traits["vcpu"] >= 4 && traits["region"] == "hk"`。
type CELMatcher struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELMatcher 创建一个新的规则匹配器实例。
func NewCELMatcher() (*CELMatcher, error) {
	// 模拟器返回的数值经过 JSON 解码都是 double，需要允许与整数字面量比较
	env, err := cel.NewEnv(
		cel.Variable("traits", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	return &CELMatcher{env: env, programs: make(map[string]cel.Program)}, nil
}

// Match 返回 traits 满足表达式的条件，没有表达式的条件总是满足。
func (m *CELMatcher) Match(ctx context.Context, conditions []*domain.Condition, traits domain.Traits) ([]*domain.Condition, error) {
	vars := map[string]any{"traits": map[string]any(traits)}
	if traits == nil {
		vars["traits"] = map[string]any{}
	}

	matched := make([]*domain.Condition, 0, len(conditions))
	for _, cond := range conditions {
		if cond.TraitExpression == "" {
			matched = append(matched, cond)
			continue
		}
		prg, err := m.program(cond.TraitExpression)
		if err != nil {
			return nil, errors.Wrapf(err, "condition %d", cond.ID)
		}
		out, _, err := prg.ContextEval(ctx, vars)
		if err != nil {
			// 缺少 trait 视为不满足
			continue
		}
		if ok, _ := out.Value().(bool); ok {
			matched = append(matched, cond)
		}
	}
	return matched, nil
}

func (m *CELMatcher) program(expr string) (cel.Program, error) {
	m.mu.RLock()
	prg, ok := m.programs[expr]
	m.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := m.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrapf(domain.ErrInvalidTraitCriteria, "%q: %v", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, errors.Wrapf(domain.ErrInvalidTraitCriteria, "%q evaluates to %s", expr, ast.OutputType())
	}
	prg, err := m.env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidTraitCriteria, "%q: %v", expr, err)
	}

	m.mu.Lock()
	m.programs[expr] = prg
	m.mu.Unlock()
	return prg, nil
}
