package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yungbote/relmart/internal/domain/artifact"
	"github.com/yungbote/relmart/internal/platform/logger"
)

// Loader registers one module's definitions into the registry. Loaders
// are enumerated explicitly at bootstrap instead of relying on package
// import side effects, so load order is visible and any failure aborts
// discovery as a whole.
type Loader struct {
	Module string
	Load   func(*Registry) error
}

type entry struct {
	def    *artifact.Definition
	module string
}

// Registry maps artifact name to definition. It is an explicit object
// rather than package state so independent registries can coexist in
// tests.
type Registry struct {
	mu           sync.Mutex
	targetSchema string
	entries      map[string]entry
	discovered   bool
	log          *logger.Logger
}

func New(targetSchema string, baseLog *logger.Logger) *Registry {
	return &Registry{
		targetSchema: targetSchema,
		entries:      make(map[string]entry),
		log:          baseLog.With("component", "registry"),
	}
}

// Register validates and stores a definition. A second definition under
// an already-registered name fails with a duplicate_registration error
// naming both registrants; there is no silent overwrite.
func (r *Registry) Register(module string, def *artifact.Definition) error {
	op := "registry.Register"
	if def == nil {
		return artifact.NewError(artifact.CodeInvalidDefinition, op, "nil definition", nil)
	}
	if err := def.Validate(r.targetSchema); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[def.Name]; ok {
		return artifact.NewError(artifact.CodeDuplicateRegistration, op,
			fmt.Sprintf("artifact %q already registered by %q, rejected re-registration by %q",
				def.Name, existing.module, module), nil)
	}
	r.entries[def.Name] = entry{def: def, module: module}
	r.log.Debug("registered artifact", "name", def.Name, "module", module, "strategy", string(def.Strategy))
	return nil
}

// Get returns the definition for name. Unknown names return ok=false,
// never an error.
func (r *Registry) Get(name string) (*artifact.Definition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.def, true
}

// Discover runs every loader in order. The first loader error aborts
// discovery and propagates; nothing registered by later loaders survives a
// partial run because the registry is cleared on the way in. A successful
// run is cached; subsequent calls are no-ops unless forceReload is set.
func (r *Registry) Discover(loaders []Loader, forceReload bool) error {
	r.mu.Lock()
	if r.discovered && !forceReload {
		r.mu.Unlock()
		return nil
	}
	r.entries = make(map[string]entry)
	r.discovered = false
	r.mu.Unlock()

	for _, l := range loaders {
		if err := l.Load(r); err != nil {
			r.mu.Lock()
			r.entries = make(map[string]entry)
			r.mu.Unlock()
			// Keep the loader's own code (duplicate_registration etc.)
			// visible to IsCode; only untyped failures default to
			// invalid_definition.
			code := artifact.CodeOf(err)
			if code == "" {
				code = artifact.CodeInvalidDefinition
			}
			return artifact.Wrap(code,
				fmt.Sprintf("registry.Discover[%s]", l.Module), err)
		}
	}

	r.mu.Lock()
	r.discovered = true
	n := len(r.entries)
	r.mu.Unlock()
	r.log.Info("artifact discovery complete", "count", n)
	return nil
}

// ListAll returns the registered names sorted for determinism.
func (r *Registry) ListAll() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAll returns all definitions sorted by name.
func (r *Registry) GetAll() []*artifact.Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]*artifact.Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.entries[name].def)
	}
	return defs
}
