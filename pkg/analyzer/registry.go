package analyzer

import (
	"sort"
	"sync"
)

// Registry is a container for all available analyzers
type Registry struct {
	analyzers map[string][]FileAnalyzer
	mu        sync.RWMutex
}

// NewRegistry creates a new analyzer registry
func NewRegistry() *Registry {
	return &Registry{
		analyzers: make(map[string][]FileAnalyzer),
	}
}

// Register adds an analyzer to the registry
func (r *Registry) Register(analyzer FileAnalyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, format := range analyzer.SupportedFormats() {
		r.analyzers[format] = append(r.analyzers[format], analyzer)
	}
}

// AnalyzersFor returns all analyzers that support the given extension
func (r *Registry) AnalyzersFor(ext string) []FileAnalyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.analyzers[ext]
}

// AnalyzerFor returns the first registered analyzer for the extension, or nil
func (r *Registry) AnalyzerFor(ext string) FileAnalyzer {
	analyzers := r.AnalyzersFor(ext)
	if len(analyzers) == 0 {
		return nil
	}
	return analyzers[0]
}

// SupportedFormats returns a sorted list of all registered extensions
func (r *Registry) SupportedFormats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	formats := make([]string, 0, len(r.analyzers))
	for format := range r.analyzers {
		formats = append(formats, format)
	}
	sort.Strings(formats)

	return formats
}
