package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/cloudcfg/pkg/address"
	"github.com/cuemby/cloudcfg/pkg/diag"
	"github.com/cuemby/cloudcfg/pkg/hostname"
	"github.com/cuemby/cloudcfg/pkg/log"
	"github.com/cuemby/cloudcfg/pkg/metrics"
	"github.com/cuemby/cloudcfg/pkg/storage"
	"github.com/cuemby/cloudcfg/pkg/topology"
	"github.com/cuemby/cloudcfg/pkg/types"
)

var (
	ErrCycle     = errors.New("plugin dependency cycle")
	ErrUnknown   = errors.New("unknown plugin dependency")
	ErrDuplicate = errors.New("plugin already registered")
)

// Phase groups plugins; phases always run in the order of Phases
type Phase string

const (
	PhaseGenerate Phase = "generate"
	PhaseValidate Phase = "validate"
	PhaseBuild    Phase = "build"
)

// Phases lists the phases in run order
var Phases = []Phase{PhaseGenerate, PhaseValidate, PhaseBuild}

// Plugin is one step of a compile run
type Plugin interface {
	// ID names the plugin; dependencies refer to it
	ID() string
	Phase() Phase
	// Dependencies are the ids of plugins that must run first
	Dependencies() []string
	Run(ctx context.Context, c *Context) error
}

// Options carries run options plugins may consult
type Options struct {
	OutputDir             string
	RemoveDeletedServers  bool
	FreeUnusedAddresses   bool
	EncryptionKey         string
	PreviousEncryptionKey string
}

// Context is the shared state handed to every plugin of a run
type Context struct {
	RunID     string
	Model     *types.Model
	Store     storage.Store
	Addresses *address.Allocator
	Tree      *topology.Tree
	Hostnames *hostname.Registry
	Diag      *diag.Diagnostics
	Resolved  *types.Resolved
	Metrics   *metrics.Recorder
	Options   Options
	Logger    zerolog.Logger
}

// Func adapts a function to Plugin
type Func struct {
	Name     string
	RunPhase Phase
	Deps     []string
	Fn       func(ctx context.Context, c *Context) error
}

func (f *Func) ID() string             { return f.Name }
func (f *Func) Phase() Phase           { return f.RunPhase }
func (f *Func) Dependencies() []string { return f.Deps }

func (f *Func) Run(ctx context.Context, c *Context) error {
	return f.Fn(ctx, c)
}

// Registry holds the plugins known to a compiler, in registration order
type Registry struct {
	plugins []Plugin
	byID    map[string]Plugin
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Plugin)}
}

// Register adds a plugin
func (r *Registry) Register(p Plugin) error {
	if _, ok := r.byID[p.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.ID())
	}
	r.byID[p.ID()] = p
	r.plugins = append(r.plugins, p)
	return nil
}

// MustRegister adds plugins and panics on a duplicate id
func (r *Registry) MustRegister(plugins ...Plugin) {
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// Get returns a plugin by id
func (r *Registry) Get(id string) (Plugin, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Run executes every plugin phase by phase in dependency order. A plugin
// error stops the run; findings recorded in c.Diag do not.
func (r *Registry) Run(ctx context.Context, c *Context) error {
	logger := log.WithComponent("plugin")
	for _, phase := range Phases {
		ordered, err := r.Order(phase)
		if err != nil {
			return err
		}
		for _, p := range ordered {
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.Debug().Str("plugin", p.ID()).Str("phase", string(phase)).Msg("Running plugin")
			timer := metrics.NewTimer()
			err := p.Run(ctx, c)
			if c.Metrics != nil {
				timer.ObserveDurationVec(c.Metrics.PluginDuration, p.ID(), string(phase))
			}
			if err != nil {
				return fmt.Errorf("plugin %s: %w", p.ID(), err)
			}
		}
	}
	return nil
}
