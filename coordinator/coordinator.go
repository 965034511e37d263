// Package coordinator turns inbound messages into generation workflows.
// It owns the persisted workflow record: every stage transition is written
// to the store before any listener is notified, so a reader after a restart
// always sees a state consistent with the last stage known to have started.
package coordinator

import (
	"context"
	"log/slog"

	"github.com/blockweave/blockweave"
	"github.com/blockweave/blockweave/agent"
	"github.com/blockweave/blockweave/assets"
	"github.com/blockweave/blockweave/hooks"
	"github.com/blockweave/blockweave/remote"
	"github.com/blockweave/blockweave/state"
)

// Bridge is the page-agent surface the coordinator drives. Satisfied by
// *agent.Bridge; tests substitute a fake.
type Bridge interface {
	PickTarget(ctx context.Context) (*agent.Target, error)
	Install(ctx context.Context, target *agent.Target, style, behavior string) error
	Open(ctx context.Context) error
	EnterSectionMode(ctx context.Context) error
	Cancel(ctx context.Context) error
	CaptureScreenshot(ctx context.Context, bounds agent.Bounds) ([]byte, error)
}

var _ Bridge = (*agent.Bridge)(nil)

// Keeper holds the liveness signal for the duration of a workflow.
// Satisfied by *keepalive.Keeper.
type Keeper interface {
	Start()
	Stop()
}

// BlockLister lists artifacts already present in the source repository.
// Satisfied by *assets.Client.
type BlockLister interface {
	ListBlocks(ctx context.Context, repositoryRef string) ([]assets.Entry, error)
}

var _ BlockLister = (*assets.Client)(nil)

// noopKeeper is used when no liveness mechanism is configured.
type noopKeeper struct{}

func (noopKeeper) Start() {}
func (noopKeeper) Stop()  {}

// Coordinator executes workflows against a store, a remote generation
// service, and an optional page-agent bridge.
type Coordinator struct {
	store    state.Store
	remote   *remote.Client
	bridge   Bridge
	keeper   Keeper
	blocks   BlockLister
	registry *hooks.Registry
	logger   *slog.Logger

	// agent assets injected into target pages.
	agentStyle    string
	agentBehavior string
}

// Option configures the Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger for the coordinator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithBridge sets the page-agent bridge. Without one, operations that need
// a target page fail with a structured error.
func WithBridge(b Bridge) Option {
	return func(c *Coordinator) { c.bridge = b }
}

// WithKeeper sets the liveness keeper held across workflows.
func WithKeeper(k Keeper) Option {
	return func(c *Coordinator) { c.keeper = k }
}

// WithBlockLister sets the source-repository listing client.
func WithBlockLister(l BlockLister) Option {
	return func(c *Coordinator) { c.blocks = l }
}

// WithHooks sets the extension registry notified of lifecycle events.
func WithHooks(r *hooks.Registry) Option {
	return func(c *Coordinator) { c.registry = r }
}

// WithAgentAssets sets the style and behavior injected into target pages.
func WithAgentAssets(style, behavior string) Option {
	return func(c *Coordinator) {
		c.agentStyle = style
		c.agentBehavior = behavior
	}
}

// New creates a Coordinator over the given store and remote client.
func New(store state.Store, rc *remote.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		remote: rc,
		keeper: noopKeeper{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = hooks.NewRegistry(c.logger)
	}
	return c
}

// Config returns the stored configuration, or ErrConfigurationMissing when
// none is saved or the record is incomplete.
func (c *Coordinator) Config(ctx context.Context) (*state.Config, error) {
	cfg, err := c.store.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Complete() {
		return nil, blockweave.ErrConfigurationMissing
	}
	return cfg, nil
}

// SetConfig overwrites the stored configuration wholesale.
func (c *Coordinator) SetConfig(ctx context.Context, cfg *state.Config) error {
	return c.store.SetConfig(ctx, cfg)
}

// State returns the current workflow record, idle when none exists.
func (c *Coordinator) State(ctx context.Context) (*state.WorkflowState, error) {
	return c.store.GetState(ctx)
}

// serviceEndpoint resolves the remote endpoint, honoring the stored
// override.
func (c *Coordinator) serviceClient(cfg *state.Config) *remote.Client {
	if cfg != nil && cfg.ServiceEndpointOverride != "" &&
		cfg.ServiceEndpointOverride != c.remote.Endpoint() {
		return remote.New(cfg.ServiceEndpointOverride)
	}
	return c.remote
}

// Handle dispatches one inbound request. Every branch returns a Response;
// failures never escape as errors so the transport can always reply.
func (c *Coordinator) Handle(ctx context.Context, req Request) *Response {
	switch r := req.(type) {
	case *StartSelection:
		return c.handleStartSelection(ctx, false)
	case *CancelSelection:
		return c.handleCancelSelection(ctx)
	case *StartSectionSelection:
		return c.handleStartSelection(ctx, true)
	case *CancelSectionSelection:
		return c.handleCancelSelection(ctx)
	case *SectionSelected:
		c.registry.EmitSelectionEvent(ctx, TypeSectionSelected, r.Payload)
		return ok(nil)
	case *ElementSelected:
		return c.handleGenerate(ctx, &GenerateBlock{Selection: r.Selection})
	case *GenerateBlock:
		return c.handleGenerate(ctx, r)
	case *AcceptBlock:
		return c.handleAccept(ctx, r)
	case *RejectBlock:
		return c.handleReject(ctx, r.SessionID)
	case *ImportDesignSystem:
		return c.handleImportDesignSystem(ctx, r)
	case *FinalizeDesignSystem:
		return c.handleFinalizeDesignSystem(ctx, r)
	case *RejectDesignSystem:
		return c.handleReject(ctx, r.SessionID)
	case *AnalyzePage:
		return c.handleAnalyzePage(ctx, r)
	case *GenerateBlockForSection:
		return c.handleGenerateForSection(ctx, r)
	case *ComposePage:
		return c.handleComposePage(ctx, r)
	case *FinalizePage:
		return c.handleFinalizePage(ctx, r)
	case *RejectPage:
		return c.handleRejectPage(ctx, r)
	case *OpenSidebar:
		return c.handleOpenSidebar(ctx)
	case *GetBlocks:
		return c.handleGetBlocks(ctx)
	default:
		return fail(ErrUnknownMessageType)
	}
}

// HandleMessage parses and dispatches a raw type-tagged message.
func (c *Coordinator) HandleMessage(ctx context.Context, msgType string, payload []byte) *Response {
	req, err := ParseRequest(msgType, payload)
	if err != nil {
		return fail(err)
	}
	return c.Handle(ctx, req)
}
