package code

import "fmt"

// Evaluator is the host language the expander delegates to. Macro
// expressions, import-time blocks and builder programs all run through it.
type Evaluator interface {
	// Eval evaluates a single expression against scope.
	Eval(expr string, scope *Scope) (any, error)
	// Exec runs a program. Names it binds are written back into scope.
	Exec(src string, scope *Scope) error
	// LocalNames returns the names bound locally inside the single function
	// definition in src, in order of first binding.
	LocalNames(src string) ([]string, error)
	// Render expands the `$name$` holes of a template using scope.
	Render(tmpl string, scope *Scope) (string, error)
	// Quote returns a host string literal denoting s.
	Quote(s string) string
	// IsBuiltin reports whether name is always defined by the host.
	IsBuiltin(name string) bool
}

// Loader resolves a module name for `$import` and `$from`.
type Loader interface {
	Load(name string) (any, error)
}

// Pythonic is implemented by values that render themselves as source.
type Pythonic interface {
	AsPython(inline bool) string
}

// Render turns an evaluated macro result into source text.
func Render(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case Pythonic:
		return x.AsPython(true)
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
