// Package dsl 是实验定向规则的表达式解释器，基于 CEL (Common Expression Language)。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存已编译的表达式：expr -> *Rule
	programs sync.Map
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("user", cel.DynType),
		cel.Variable("request", cel.DynType),
	)
}

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Rule 是编译后的定向规则，可并发调用 Match。
//
// 表达式语法（CEL 标准语法）：
//   - 基础：user.country == "US" / user.segment != "new"
//   - 数值：user.orders >= 3
//   - 逻辑：user.country == "US" && request.device == "mobile"
//   - 存在性：has(user.segment)
//   - 包含："vegan" in user.interests
type Rule struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式，相同表达式只编译一次。空表达式匹配所有用户。
func Compile(expr string) (*Rule, error) {
	if expr == "" {
		return &Rule{}, nil
	}
	if r, ok := programs.Load(expr); ok {
		return r.(*Rule), nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	switch t := ast.OutputType().String(); t {
	case "bool", "dyn":
	default:
		return nil, fmt.Errorf("expression must return boolean, got %s", t)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	r := &Rule{expr: expr, prg: prg}
	programs.Store(expr, r)
	return r, nil
}

// Expr 返回原始表达式。
func (r *Rule) Expr() string { return r.expr }

// Match 以 user / request 属性执行规则。
// 访问不存在的字段会返回错误，调用方应使用 has() 判断存在性。
func (r *Rule) Match(user, request map[string]any) (bool, error) {
	if r == nil || r.prg == nil {
		return true, nil
	}
	if user == nil {
		user = map[string]any{}
	}
	if request == nil {
		request = map[string]any{}
	}
	out, _, err := r.prg.Eval(map[string]any{
		"user":    user,
		"request": request,
	})
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}
