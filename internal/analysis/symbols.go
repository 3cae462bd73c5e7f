package analysis

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ianlancetaylor/demangle"
)

// demangleCache bounds the memory spent on demangled names; large C++
// binaries carry hundreds of thousands of distinct symbols.
var demangleCache, _ = lru.New[string, string](8192)

// Demangle returns the human-readable form of a mangled symbol name, or
// the name unchanged when it does not demangle. Results are cached.
func Demangle(mangled string) string {
	if cached, ok := demangleCache.Get(mangled); ok {
		return cached
	}
	out := demangle.Filter(mangled, demangle.NoClones)
	demangleCache.Add(mangled, out)
	return out
}
