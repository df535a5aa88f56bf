package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/qmuntal/stateless" // FSM library

	"github.com/comigor/mapchat-go/internal/config"
	"github.com/comigor/mapchat-go/internal/geo"
	"github.com/comigor/mapchat-go/internal/geocode"
	"github.com/comigor/mapchat-go/internal/history"
	"github.com/comigor/mapchat-go/internal/logger"
	"github.com/comigor/mapchat-go/internal/metrics"
	"github.com/comigor/mapchat-go/internal/selection"
)

// FSM States
type State string

const (
	StateIdle            State = "Idle"
	StateAwaitingGeocode State = "AwaitingGeocode" // exactly one lookup in flight
)

// FSM Triggers
type Trigger string

const (
	TriggerSubmit          Trigger = "Submit"
	TriggerGeocodeFound    Trigger = "GeocodeFound"
	TriggerGeocodeNotFound Trigger = "GeocodeNotFound"
	TriggerReset           Trigger = "Reset"
	TriggerSelectLocation  Trigger = "SelectLocation"
)

// Settings configures an Engine.
type Settings struct {
	ConversationID  string
	Welcome         string
	FoundPrefix     string
	NotFound        string
	FoundZoom       int
	DefaultViewport geo.Viewport

	Journal history.Sink     // optional
	Metrics *metrics.Metrics // optional
}

// DefaultSettings returns the built-in texts, zoom levels and viewport.
func DefaultSettings() Settings {
	return Settings{
		Welcome:         "Hi! Type a place or an address and I'll show it on the map.",
		FoundPrefix:     "Found it:",
		NotFound:        "Sorry, I couldn't find that location. Try a more specific address.",
		FoundZoom:       16,
		DefaultViewport: selection.DefaultViewport,
	}
}

// SettingsFromConfig maps the application config onto engine settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Welcome:     cfg.Messages.Welcome,
		FoundPrefix: cfg.Messages.FoundPrefix,
		NotFound:    cfg.Messages.NotFound,
		FoundZoom:   cfg.Map.FoundZoom,
		DefaultViewport: geo.Viewport{
			Center: geo.LatLng{Lat: cfg.Map.DefaultLat, Lng: cfg.Map.DefaultLng},
			Zoom:   cfg.Map.DefaultZoom,
		},
	}
}

// Engine owns one conversation: its message log, the active location and the
// derived viewport. All state changes go through the FSM while mu is held; the
// geocode lookup is the only work done outside the lock.
type Engine struct {
	settings  Settings
	resolver  geocode.Resolver
	store     *history.Store
	selection *selection.Controller
	log       *slog.Logger

	mu         sync.Mutex
	fsm        *stateless.StateMachine
	active     int64  // 0 means no active location
	generation uint64 // bumped by every submit and reset
	inflight   sync.WaitGroup
}

// New creates an engine seeded with the welcome message and the default viewport.
func New(resolver geocode.Resolver, settings Settings) *Engine {
	e := &Engine{
		settings:  settings,
		resolver:  resolver,
		store:     history.NewStore(settings.ConversationID, settings.Welcome, settings.Journal),
		selection: selection.New(settings.DefaultViewport),
		log:       logger.L.With("conversation_id", settings.ConversationID),
	}
	e.fsm = e.buildFSM()
	return e
}

func (e *Engine) buildFSM() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)

	// State: Idle
	//   - Submit with text -> AwaitingGeocode (user message appended, lookup started)
	//   - Submit blank -> ignored
	//   - GeocodeFound / GeocodeNotFound enter Idle from AwaitingGeocode
	//   - Reset re-enters Idle
	fsm.Configure(StateIdle).
		Permit(TriggerSubmit, StateAwaitingGeocode, hasText).
		Ignore(TriggerSubmit, isBlank).
		PermitReentry(TriggerReset).
		InternalTransition(TriggerSelectLocation, e.onSelect).
		OnEntryFrom(TriggerGeocodeFound, e.onFound).
		OnEntryFrom(TriggerGeocodeNotFound, e.onNotFound).
		OnEntryFrom(TriggerReset, e.onReset)

	// State: AwaitingGeocode
	//   - Submit -> ignored, at most one lookup in flight
	//   - lookup result -> Idle
	//   - Reset -> Idle, the in-flight result becomes stale
	fsm.Configure(StateAwaitingGeocode).
		OnEntryFrom(TriggerSubmit, e.onSubmit).
		Ignore(TriggerSubmit).
		Permit(TriggerGeocodeFound, StateIdle).
		Permit(TriggerGeocodeNotFound, StateIdle).
		Permit(TriggerReset, StateIdle).
		InternalTransition(TriggerSelectLocation, e.onSelect)

	return fsm
}

func textArg(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return s
}

func hasText(_ context.Context, args ...any) bool {
	return strings.TrimSpace(textArg(args)) != ""
}

func isBlank(ctx context.Context, args ...any) bool {
	return !hasText(ctx, args...)
}

// submission travels with TriggerSubmit into onSubmit.
type submission struct {
	text string
	ctx  context.Context
	done chan struct{}
}

func (e *Engine) onSubmit(_ context.Context, args ...any) error {
	if len(args) < 2 {
		return fmt.Errorf("submit: expected 2 arguments, got %d", len(args))
	}
	sub, ok := args[1].(*submission)
	if !ok {
		return fmt.Errorf("submit: unexpected argument %T", args[1])
	}
	msg := e.store.Append(history.SenderUser, sub.text, nil)
	e.generation++
	gen := e.generation
	e.log.Info("lookup started", "message_id", msg.ID, "query", sub.text, "generation", gen)

	e.inflight.Add(1)
	go e.lookup(sub.ctx, gen, sub.text, sub.done)
	return nil
}

func (e *Engine) onFound(_ context.Context, args ...any) error {
	if len(args) == 0 {
		return fmt.Errorf("found: missing location")
	}
	loc, ok := args[0].(geo.ResolvedLocation)
	if !ok {
		return fmt.Errorf("found: unexpected argument %T", args[0])
	}
	text := fmt.Sprintf("%s %s", e.settings.FoundPrefix, loc.Label())
	msg := e.store.Append(history.SenderSystem, text, &loc)
	vp := e.selection.Activate(loc, e.settings.FoundZoom)
	e.active = msg.ID
	e.log.Debug("location activated", "message_id", msg.ID, "center", vp.Center, "zoom", vp.Zoom)
	return nil
}

func (e *Engine) onNotFound(_ context.Context, _ ...any) error {
	e.store.Append(history.SenderSystem, e.settings.NotFound, nil)
	return nil
}

func (e *Engine) onReset(_ context.Context, _ ...any) error {
	e.generation++
	e.store.Reset()
	e.active = 0
	e.selection.Clear()
	e.log.Info("conversation reset", "epoch", e.store.Epoch())
	return nil
}

func (e *Engine) onSelect(_ context.Context, args ...any) error {
	if len(args) == 0 {
		return fmt.Errorf("select: missing message")
	}
	msg, ok := args[0].(history.Message)
	if !ok || msg.Location == nil {
		return fmt.Errorf("select: unexpected argument %T", args[0])
	}
	e.selection.Activate(*msg.Location, e.settings.FoundZoom)
	e.active = msg.ID
	return nil
}

// fire runs a transition. Callers hold mu.
func (e *Engine) fire(ctx context.Context, trigger Trigger, args ...any) {
	if err := e.fsm.FireCtx(ctx, trigger, args...); err != nil {
		e.log.Error("FSM fire error", "trigger", trigger, "error", err)
	}
}

// state returns the current FSM state. Callers hold mu.
func (e *Engine) state() State {
	return e.fsm.MustState().(State)
}

// Submit appends text as a user message and starts a geocode lookup for it.
// It reports false, and changes nothing, when text is blank or a lookup is
// already in flight. Otherwise the returned channel is closed once the lookup
// result has been folded into the conversation (or discarded after a reset).
//
// The lookup outlives ctx's cancellation; it is bounded by the resolver's own timeout.
func (e *Engine) Submit(ctx context.Context, text string) (<-chan struct{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.state()
	sub := &submission{text: text, ctx: context.WithoutCancel(ctx), done: make(chan struct{})}
	e.fire(ctx, TriggerSubmit, text, sub)

	switch {
	case before == StateAwaitingGeocode:
		e.log.Debug("submission ignored, lookup pending", "text", text)
		e.settings.Metrics.Submission(metrics.SubmitIgnoredPending)
		return nil, false
	case e.state() != StateAwaitingGeocode:
		e.settings.Metrics.Submission(metrics.SubmitIgnoredBlank)
		return nil, false
	}
	e.settings.Metrics.Submission(metrics.SubmitAccepted)
	return sub.done, true
}

func (e *Engine) lookup(ctx context.Context, gen uint64, text string, done chan struct{}) {
	defer e.inflight.Done()
	defer close(done)

	loc, ok := e.resolve(ctx, text)

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.state() != StateAwaitingGeocode {
		e.log.Info("discarding stale lookup result", "query", text, "generation", gen, "current", e.generation)
		e.settings.Metrics.StaleResult()
		return
	}
	if ok && loc != nil {
		e.fire(ctx, TriggerGeocodeFound, *loc)
		return
	}
	e.fire(ctx, TriggerGeocodeNotFound)
}

// resolve calls the resolver and turns a panic into "not found".
func (e *Engine) resolve(ctx context.Context, text string) (loc *geo.ResolvedLocation, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("resolver panicked", "query", text, "panic", r)
			loc, ok = nil, false
		}
	}()
	loc, ok = e.resolver.Resolve(ctx, text)
	if ok && loc != nil && !loc.Point().Valid() {
		e.log.Warn("resolver returned invalid coordinates", "query", text, "lat", loc.Latitude, "lng", loc.Longitude)
		return nil, false
	}
	return loc, ok
}

// Reset clears the conversation back to the welcome message, drops the active
// location and restores the default viewport. A lookup still in flight is discarded.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fire(ctx, TriggerReset)
}

// SelectLocation makes the location carried by message id the active one.
// It reports false, and changes nothing, when the message does not exist or has no location.
func (e *Engine) SelectLocation(ctx context.Context, id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg, ok := e.store.Get(id)
	if !ok || !msg.HasLocation() {
		return false
	}
	e.fire(ctx, TriggerSelectLocation, msg)
	return true
}

// Wait blocks until no lookup is in flight.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// ID returns the conversation id.
func (e *Engine) ID() string {
	return e.settings.ConversationID
}
