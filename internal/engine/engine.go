package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/example/archboard/internal/identity"
	"github.com/example/archboard/internal/localcache"
	"github.com/example/archboard/internal/notify"
	"github.com/example/archboard/internal/remote"
	"github.com/example/archboard/internal/types"
)

var (
	// ErrSuspended is reported for saves requested while no identity is
	// present and synchronization is suspended.
	ErrSuspended = errors.New("synchronization suspended: not signed in")
	// ErrEditCancelled resolves the completion channel of a staged edit that
	// was explicitly cancelled before its save fired.
	ErrEditCancelled = errors.New("edit cancelled")
	// ErrUnknownNode is returned for operations addressing a node id that is
	// not present in the local document.
	ErrUnknownNode = errors.New("unknown node")
)

// Config tunes the engine's timers and retry policy. Zero values fall back
// to the defaults recommended for interactive editing.
type Config struct {
	// FieldDebounce is the input-quiescence window before a field edit is
	// saved.
	FieldDebounce time.Duration
	// DragDebounce is the longer window used for canvas position updates,
	// which arrive at pointer-move frequency.
	DragDebounce time.Duration
	// PollInterval drives the fetch fallback that backstops the push feed.
	PollInterval time.Duration
	// EchoTolerance absorbs clock and serialization skew when matching a
	// feed notification against this client's own last write.
	EchoTolerance time.Duration
	// DirtyLinger keeps a node's dirty flag set past a completed save so a
	// late-arriving echo cannot revert the edit.
	DirtyLinger time.Duration
	// SaveAttempts bounds transport retries before the engine goes offline.
	SaveAttempts int
	// RetryBase is the first retry delay; subsequent delays double.
	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.FieldDebounce == 0 {
		c.FieldDebounce = 800 * time.Millisecond
	}
	if c.DragDebounce == 0 {
		c.DragDebounce = time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.EchoTolerance == 0 {
		c.EchoTolerance = 100 * time.Millisecond
	}
	if c.DirtyLinger == 0 {
		c.DirtyLinger = 3 * time.Second
	}
	if c.SaveAttempts == 0 {
		c.SaveAttempts = 3
	}
	if c.RetryBase == 0 {
		c.RetryBase = time.Second
	}
	return c
}

type pendingSave struct {
	timer   clockwork.Timer
	node    types.Node
	wait    time.Duration
	waiters []chan error
}

// Engine is the patch synchronizer: it owns the per-node debounce timers,
// the dirty set, the echo marker, and the save-pending flag, and performs
// every read-merge-write cycle against the remote store. There is no
// server-side merge; two engines editing different nodes never lose data
// because each write only substitutes its own node into whatever the remote
// document currently holds. Two engines editing the same node race, and the
// last completed round-trip wins; that is an accepted limitation of the
// board, not a defect to paper over.
type Engine struct {
	cache    *localcache.Cache
	store    remote.Store
	ident    identity.Provider
	notifier notify.Notifier
	logger   zerolog.Logger
	clock    clockwork.Clock
	cfg      Config

	dirty *dirtyTracker
	echo  echoMarker

	mu            sync.Mutex
	baseCtx       context.Context
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	stopFeed      func()
	running       bool
	pending       map[string]*pendingSave
	savesInFlight int
	connSaves     int
	lastApplied   types.Timestamp
	status        Status
	statusSubs    []func(Status)
	changeSubs    []func(types.Document, []types.Edge)
	unsubIdent    func()
}

// New constructs an engine around the given cache and store. A nil clock
// means wall-clock time; tests pass a fake.
func New(cache *localcache.Cache, store remote.Store, ident identity.Provider, notifier notify.Notifier, logger zerolog.Logger, clock clockwork.Clock, cfg Config) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		cache:    cache,
		store:    store,
		ident:    ident,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		dirty:    newDirtyTracker(),
		pending:  make(map[string]*pendingSave),
		status:   StatusSynced,
	}
}

// Start begins synchronization. The engine follows the identity provider:
// it runs while somebody is signed in and suspends entirely otherwise.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	e.unsubIdent = e.ident.Subscribe(func(ident *identity.Identity) {
		if ident == nil {
			e.suspend()
			return
		}
		e.resume()
	})

	if _, ok := e.ident.Current(); ok {
		e.resume()
	}
}

// Stop suspends synchronization and detaches from the identity provider.
func (e *Engine) Stop() {
	if e.unsubIdent != nil {
		e.unsubIdent()
	}
	e.suspend()
}

func (e *Engine) resume() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	e.sessionCtx = ctx
	e.sessionCancel = cancel
	e.running = true
	e.mu.Unlock()

	stop, err := e.store.Subscribe(ctx, e.handleIncoming)
	if err != nil {
		e.logger.Warn().Err(err).Msg("push feed unavailable; relying on polling fallback")
	} else {
		e.mu.Lock()
		e.stopFeed = stop
		e.mu.Unlock()
	}

	go e.initialSync(ctx)
	go e.pollLoop(ctx)

	e.logger.Info().Msg("synchronization resumed")
}

func (e *Engine) suspend() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.sessionCancel
	stopFeed := e.stopFeed
	e.stopFeed = nil
	abandoned := e.pending
	e.pending = make(map[string]*pendingSave)
	e.mu.Unlock()

	if stopFeed != nil {
		stopFeed()
	}
	if cancel != nil {
		cancel()
	}
	for id, p := range abandoned {
		p.timer.Stop()
		e.dirty.Clear(id)
		for _, w := range p.waiters {
			w <- ErrSuspended
		}
	}

	e.logger.Info().Msg("synchronization suspended")
}

// initialSync performs the first fetch of a session. A missing remote row is
// the first-run condition and triggers exactly one seeding write; it is never
// retried in a loop, since the polling fallback confirms the row afterwards.
func (e *Engine) initialSync(ctx context.Context) {
	row, err := e.store.Fetch(ctx)
	if errors.Is(err, remote.ErrNotFound) {
		e.seed(ctx)
		return
	}
	if err != nil {
		e.logger.Warn().Err(err).Msg("initial fetch failed; serving local fallback copy")
		return
	}
	e.handleIncoming(row)
}

func (e *Engine) seed(ctx context.Context) {
	now := types.At(e.clock.Now())
	doc := e.cache.Document()
	doc.UpdatedAt = now
	row := remote.Row{Document: doc, Connections: e.cache.Connections(), UpdatedAt: now}

	e.echo.Record(now)
	if err := e.store.Write(ctx, row); err != nil {
		e.logger.Warn().Err(err).Msg("failed to seed remote store")
		return
	}
	e.setLastApplied(now)
	e.logger.Info().Msg("seeded remote store with local document")
}

// StageNode applies a field-level node edit optimistically and schedules the
// debounced save. The returned channel resolves once the save round-trip
// completes, or with the error that left the engine offline.
func (e *Engine) StageNode(node types.Node) <-chan error {
	return e.stage(node, e.cfg.FieldDebounce)
}

// StagePosition schedules a canvas move for the node. Position updates fire
// at pointer-move frequency, so they use the longer debounce window.
func (e *Engine) StagePosition(nodeID string, pos types.Position) (<-chan error, error) {
	doc := e.cache.Document()
	node, ok := doc.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	node.Position = pos
	return e.stage(node, e.cfg.DragDebounce), nil
}

func (e *Engine) stage(node types.Node, wait time.Duration) <-chan error {
	node.LastUpdated = types.At(e.clock.Now())

	doc := e.cache.Document()
	doc.UpsertNode(node.Clone())
	e.cache.SetDocument(doc)
	e.emitChange(doc, e.cache.Connections())

	done := make(chan error, 1)

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		done <- ErrSuspended
		return done
	}
	e.dirty.Mark(node.ID)

	if p, ok := e.pending[node.ID]; ok {
		// A newer edit replaces the pending save rather than firing twice.
		p.node = node
		p.wait = wait
		p.waiters = append(p.waiters, done)
		p.timer.Reset(wait)
		e.mu.Unlock()
		return done
	}

	nodeID := node.ID
	p := &pendingSave{node: node, wait: wait, waiters: []chan error{done}}
	p.timer = e.clock.AfterFunc(wait, func() { e.flush(nodeID) })
	e.pending[nodeID] = p
	e.mu.Unlock()
	return done
}

// BeginEdit marks a node dirty at the start of a field-level edit session,
// before any save is scheduled, so an incoming remote update cannot destroy
// the edit mid-keystroke.
func (e *Engine) BeginEdit(nodeID string) {
	e.dirty.Mark(nodeID)
}

// CancelEdit abandons a pending staged save and releases the node's dirty
// protection.
func (e *Engine) CancelEdit(nodeID string) {
	e.mu.Lock()
	p, ok := e.pending[nodeID]
	if ok {
		p.timer.Stop()
		delete(e.pending, nodeID)
	}
	e.mu.Unlock()

	e.dirty.Clear(nodeID)
	if ok {
		for _, w := range p.waiters {
			w <- ErrEditCancelled
		}
	}
}

func (e *Engine) flush(nodeID string) {
	e.mu.Lock()
	p, ok := e.pending[nodeID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.pending, nodeID)
	ctx := e.sessionCtx
	e.savesInFlight++
	e.mu.Unlock()

	e.setStatus(StatusSaving)

	go func() {
		start := e.clock.Now()
		err := e.withRetry(ctx, func(ctx context.Context) error {
			return e.saveCycle(ctx, func(row *remote.Row) {
				// Node-granularity merge: keep every remote node as-is and
				// substitute only our own, appending it when newly created.
				row.Document.UpsertNode(p.node)
			})
		})
		saveLatency.Observe(e.clock.Since(start).Seconds())
		e.finishSave(nodeID, err, p.waiters)
	}()
}

// DeleteNode removes a node and, in the same read-merge-write cycle, every
// connection referencing it. There is no window in which an edge points at a
// node that no longer exists.
func (e *Engine) DeleteNode(ctx context.Context, nodeID string) error {
	doc := e.cache.Document()
	if !doc.RemoveNode(nodeID) {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	conns := types.PruneEdges(e.cache.Connections(), nodeID)
	e.cache.Replace(doc, conns)
	e.emitChange(doc, conns)

	e.mu.Lock()
	if p, ok := e.pending[nodeID]; ok {
		p.timer.Stop()
		delete(e.pending, nodeID)
		for _, w := range p.waiters {
			w <- ErrEditCancelled
		}
	}
	running := e.running
	e.savesInFlight++
	e.connSaves++
	e.mu.Unlock()

	e.dirty.Clear(nodeID)
	if !running {
		e.releaseSave(true)
		return ErrSuspended
	}

	e.setStatus(StatusSaving)
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.saveCycle(ctx, func(row *remote.Row) {
			row.Document.RemoveNode(nodeID)
			row.Connections = types.PruneEdges(row.Connections, nodeID)
		})
	})
	e.finishCollectionSave(err)
	return err
}

// SaveConnections replaces the whole connections collection. Edges change
// rarely, so the race window of collection granularity is acceptable.
func (e *Engine) SaveConnections(ctx context.Context, conns []types.Edge) error {
	conns = types.CloneEdges(conns)
	e.cache.SetConnections(conns)
	e.emitChange(e.cache.Document(), conns)

	e.mu.Lock()
	running := e.running
	e.savesInFlight++
	e.connSaves++
	e.mu.Unlock()

	if !running {
		e.releaseSave(true)
		return ErrSuspended
	}

	e.setStatus(StatusSaving)
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.saveCycle(ctx, func(row *remote.Row) {
			row.Connections = types.CloneEdges(conns)
		})
	})
	e.finishCollectionSave(err)
	return err
}

// SaveTags replaces the tag collection, de-duplicated by id. Tags are never
// deleted in the current design.
func (e *Engine) SaveTags(ctx context.Context, tags []types.Tag) error {
	doc := e.cache.Document()
	doc.Tags = append([]types.Tag(nil), tags...)
	doc.DedupeTags()
	staged := append([]types.Tag(nil), doc.Tags...)
	e.cache.SetDocument(doc)
	e.emitChange(doc, e.cache.Connections())

	e.mu.Lock()
	running := e.running
	e.savesInFlight++
	e.mu.Unlock()

	if !running {
		e.releaseSave(false)
		return ErrSuspended
	}

	e.setStatus(StatusSaving)
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.saveCycle(ctx, func(row *remote.Row) {
			row.Document.Tags = append([]types.Tag(nil), staged...)
			row.Document.DedupeTags()
		})
	})
	e.finishCollectionSaveNoConn(err)
	return err
}

// ImportBoard replaces the entire board with externally supplied state, as
// produced by a manual export, and writes it through to the remote store.
func (e *Engine) ImportBoard(ctx context.Context, doc types.Document, conns []types.Edge) error {
	doc = doc.Clone()
	conns = types.CloneEdges(conns)
	e.cache.Replace(doc, conns)
	e.emitChange(doc, conns)

	e.mu.Lock()
	running := e.running
	e.savesInFlight++
	e.connSaves++
	e.mu.Unlock()

	if !running {
		e.releaseSave(true)
		return ErrSuspended
	}

	e.setStatus(StatusSaving)
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.saveCycle(ctx, func(row *remote.Row) {
			row.Document = doc.Clone()
			row.Connections = types.CloneEdges(conns)
		})
	})
	e.finishCollectionSave(err)
	return err
}

// AddComment appends a comment to a node's thread, stages the save, and
// fires a notification for every @mention in the text. Notifications are
// fire-and-forget and never block or fail the save.
func (e *Engine) AddComment(nodeID, author, text string) (<-chan error, error) {
	doc := e.cache.Document()
	node, ok := doc.Node(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	node.Comments = append(node.Comments, types.Comment{
		ID:        types.NewNodeID(),
		Author:    author,
		Text:      text,
		CreatedAt: types.At(e.clock.Now()),
	})
	done := e.StageNode(node)

	if e.notifier != nil {
		for _, mention := range mentionTokens(text) {
			go func(recipient string) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				e.notifier.Notify(ctx, recipient, notify.FormatMention(author, node.Name), text)
			}(mention)
		}
	}
	return done, nil
}

// saveCycle is one read-merge-write attempt: fetch the current remote row,
// let mutate substitute this client's change into it, stamp the version
// marker, and write the row back in full. The echo marker is recorded before
// the write so the feed reflection cannot outrun it.
func (e *Engine) saveCycle(ctx context.Context, mutate func(*remote.Row)) error {
	base, err := e.store.Fetch(ctx)
	if errors.Is(err, remote.ErrNotFound) {
		base = remote.Row{Document: e.cache.Document(), Connections: e.cache.Connections()}
	} else if err != nil {
		return fmt.Errorf("read before merge: %w", err)
	}

	mutate(&base)

	now := types.At(e.clock.Now())
	base.Document.UpdatedAt = now
	base.UpdatedAt = now
	e.echo.Record(now)

	if err := e.store.Write(ctx, base); err != nil {
		return fmt.Errorf("write merged state: %w", err)
	}

	e.reconcile(base)
	return nil
}

func (e *Engine) withRetry(ctx context.Context, attempt func(context.Context) error) error {
	var err error
	for try := 1; try <= e.cfg.SaveAttempts; try++ {
		if err = attempt(ctx); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		if try == e.cfg.SaveAttempts {
			break
		}
		delay := e.cfg.RetryBase << (try - 1)
		e.logger.Warn().Err(err).Dur("backoff", delay).Int("attempt", try).Msg("save failed; retrying")
		select {
		case <-e.clock.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (e *Engine) finishSave(nodeID string, err error, waiters []chan error) {
	e.releaseSave(false)

	if err != nil {
		savesTotal.WithLabelValues("offline").Inc()
		e.logger.Error().Err(err).Str("node", nodeID).Msg("save retries exhausted; going offline")
		e.setStatus(StatusOffline)
		// The node stays dirty: the optimistic local edit remains the source
		// of truth until a later save lands.
	} else {
		savesTotal.WithLabelValues("ok").Inc()
		e.markSynced()
		// Keep dirty for a trailing buffer so a late echo cannot revert the
		// edit, unless a newer edit re-armed the debounce meanwhile.
		e.clock.AfterFunc(e.cfg.DirtyLinger, func() {
			e.mu.Lock()
			_, stillPending := e.pending[nodeID]
			e.mu.Unlock()
			if !stillPending {
				e.dirty.Clear(nodeID)
			}
		})
	}

	for _, w := range waiters {
		w <- err
	}
}

func (e *Engine) finishCollectionSave(err error) {
	e.mu.Lock()
	connSaves := e.connSaves
	e.mu.Unlock()
	if connSaves > 0 {
		e.clock.AfterFunc(e.cfg.DirtyLinger, func() {
			e.mu.Lock()
			if e.connSaves > 0 {
				e.connSaves--
			}
			e.mu.Unlock()
		})
	}
	e.finishCollectionSaveNoConn(err)
}

func (e *Engine) finishCollectionSaveNoConn(err error) {
	e.releaseSave(false)
	if err != nil {
		savesTotal.WithLabelValues("offline").Inc()
		e.setStatus(StatusOffline)
		return
	}
	savesTotal.WithLabelValues("ok").Inc()
	e.markSynced()
}

func (e *Engine) releaseSave(withConn bool) {
	e.mu.Lock()
	e.savesInFlight--
	if withConn && e.connSaves > 0 {
		e.connSaves--
	}
	e.mu.Unlock()
}

func (e *Engine) markSynced() {
	e.mu.Lock()
	idle := e.savesInFlight == 0
	e.mu.Unlock()
	if idle {
		e.setStatus(StatusSynced)
	}
}

// handleIncoming is the shared entry point for both the push feed and the
// polling fallback, which makes the two paths idempotent with each other.
func (e *Engine) handleIncoming(row remote.Row) {
	if e.echo.IsEcho(row.UpdatedAt, e.cfg.EchoTolerance) {
		echoesSuppressed.Inc()
		return
	}

	e.mu.Lock()
	if !row.UpdatedAt.After(e.lastApplied.Time) {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	remoteApplied.Inc()
	e.reconcile(row)
}

// reconcile merges a remote row into local state with dirty-node protection
// and records its version marker as applied.
func (e *Engine) reconcile(row remote.Row) {
	merged := mergeIncoming(e.cache.Document(), row.Document, e.dirty.Set())

	e.mu.Lock()
	connSaving := e.connSaves > 0
	e.mu.Unlock()

	// Connections are adopted wholesale, an empty incoming collection
	// included, so a peer deleting the last edge propagates. The one
	// exception is a connections save in flight: adopting the incoming
	// array then would clobber the optimistic edge change.
	conns := types.CloneEdges(row.Connections)
	if connSaving {
		conns = e.cache.Connections()
	}

	e.cache.Replace(merged, conns)
	e.setLastApplied(row.UpdatedAt)
	e.emitChange(merged, conns)
}

func (e *Engine) setLastApplied(t types.Timestamp) {
	e.mu.Lock()
	if t.After(e.lastApplied.Time) {
		e.lastApplied = t
	}
	e.mu.Unlock()
}

// OnChange registers a callback invoked with the merged board state after
// every local or remote mutation. The UI feed subscribes here.
func (e *Engine) OnChange(fn func(types.Document, []types.Edge)) {
	e.mu.Lock()
	e.changeSubs = append(e.changeSubs, fn)
	e.mu.Unlock()
}

func (e *Engine) emitChange(doc types.Document, conns []types.Edge) {
	e.mu.Lock()
	subs := make([]func(types.Document, []types.Edge), len(e.changeSubs))
	copy(subs, e.changeSubs)
	e.mu.Unlock()

	for _, fn := range subs {
		fn(doc.Clone(), types.CloneEdges(conns))
	}
}

// Document returns the current merged document for rendering.
func (e *Engine) Document() types.Document {
	return e.cache.Document()
}

// Connections returns the current connections for rendering.
func (e *Engine) Connections() []types.Edge {
	return e.cache.Connections()
}

func mentionTokens(text string) []string {
	var out []string
	for _, field := range strings.Fields(text) {
		if len(field) < 2 || field[0] != '@' {
			continue
		}
		out = append(out, strings.TrimRight(field[1:], ".,;:!?"))
	}
	return out
}
