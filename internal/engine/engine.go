package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chat-sync/internal/auth"
	"chat-sync/internal/correlation"
	"chat-sync/internal/dispatch"
	"chat-sync/internal/events"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/presence"
	"chat-sync/internal/store"
	"chat-sync/internal/typing"
	"chat-sync/internal/upload"
	"chat-sync/internal/ws"
)

const (
	DefaultReapInterval = time.Second

	JobSummarize = "summarize"

	systemAuthor = "System"
	systemColor  = "#4A5568"
)

var (
	ErrStopped    = errors.New("engine stopped")
	ErrStaleEpoch = errors.New("connection changed while the operation was in flight")
	ErrBlocked    = errors.New("blocked by a moderator")
)

// Config wires an Engine.
type Config struct {
	Identity  auth.Identity
	RoomID    string
	Transport ws.Options

	TypingIdle     time.Duration
	TypingThrottle time.Duration
	JobTimeout     time.Duration
	ReapInterval   time.Duration
}

// Engine owns the room state of one client. Every mutation runs on a single
// loop goroutine; snapshot reads are safe from any goroutine.
type Engine struct {
	cfg        Config
	client     *ws.Client
	dispatcher *dispatch.Dispatcher

	messages *store.Store
	threads  *store.Threads
	roster   *presence.Reconciler
	typing   *typing.Coordinator
	jobs     *correlation.Table

	inbox   *mailbox
	stopped chan struct{}
	running atomic.Bool

	// loop-owned
	epoch          uint64
	ending         uint64
	historyApplied bool
	closeReason    string
	jobRefs        map[string]string

	state   atomic.Value // models.ConnectionState
	current atomic.Uint64

	mu        sync.RWMutex
	listeners []Listener
	subs      subscribers
}

// New builds an engine. Call Run to start its loop and Open to connect.
func New(cfg Config) *Engine {
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	e := &Engine{
		cfg:      cfg,
		messages: store.New(),
		threads:  store.NewThreads(),
		roster:   presence.NewReconciler(),
		jobs:     correlation.NewTable(cfg.JobTimeout),
		inbox:    newMailbox(),
		stopped:  make(chan struct{}),
		jobRefs:  make(map[string]string),
	}
	e.state.Store(models.StateIdle)
	e.client = ws.NewClient(cfg.Transport, e)
	e.dispatcher = dispatch.New(func() dispatch.Sender {
		if s := e.client.Current(); s != nil {
			return s
		}
		return nil
	}, cfg.Identity)
	e.typing = typing.NewCoordinator(typing.Config{
		Idle:     cfg.TypingIdle,
		Throttle: cfg.TypingThrottle,
		Post:     e.post,
		Emit:     e.emitTyping,
		OnChange: func() { e.notify(models.Notice{Kind: models.NoticeTypingChanged}) },
	})
	e.listeners = append(e.listeners, &e.subs)
	return e
}

// AddListener registers l for every notice.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Subscribe returns a channel of notices. Notices are dropped while the
// channel is full. cancel closes it.
func (e *Engine) Subscribe(buffer int) (<-chan models.Notice, func()) {
	id, ch := e.subs.add(buffer)
	return ch, func() { e.subs.remove(id) }
}

// Start marks the engine running and drives the loop on its own goroutine,
// so engine calls made once Start returns are accepted. The returned channel
// is closed when the loop exits.
func (e *Engine) Start(ctx context.Context) <-chan struct{} {
	if e.running.CompareAndSwap(false, true) {
		go e.loop(ctx)
	}
	return e.stopped
}

// Run drives the loop on the calling goroutine until ctx is done. The live
// session is closed on exit.
func (e *Engine) Run(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.loop(ctx)
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReapInterval)
	defer ticker.Stop()
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			e.closeSession("closed")
			for _, fn := range e.inbox.drain() {
				fn()
			}
			return
		case <-e.inbox.signal:
			for _, fn := range e.inbox.drain() {
				fn()
			}
		case <-ticker.C:
			e.reap()
		}
	}
}

// Open connects to the configured room.
func (e *Engine) Open(ctx context.Context) error {
	return e.do(ctx, func() error {
		e.closeReason = ""
		_, err := e.client.Open(e.cfg.Identity.Username, e.cfg.RoomID)
		return err
	})
}

// Close disconnects. State is cleared once the disconnect is processed.
func (e *Engine) Close(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.client.Current() == nil {
			return ws.ErrSessionClosed
		}
		e.closeSession("closed")
		return nil
	})
}

// Identity returns the local user.
func (e *Engine) Identity() auth.Identity { return e.cfg.Identity }

// RoomID returns the room this engine serves.
func (e *Engine) RoomID() string { return e.cfg.RoomID }

// State returns the last processed connection state.
func (e *Engine) State() models.ConnectionState {
	return e.state.Load().(models.ConnectionState)
}

// Epoch returns the epoch of the connected episode, or zero.
func (e *Engine) Epoch() uint64 { return e.current.Load() }

// Messages returns the ordered message log.
func (e *Engine) Messages() []models.Message { return e.messages.Messages() }

// Participants returns the roster, online first.
func (e *Engine) Participants() []models.Participant { return e.roster.Sorted() }

// Typing returns the users currently typing, in arrival order.
func (e *Engine) Typing() []string { return e.typing.Users() }

// Thread returns the private thread with counterpart.
func (e *Engine) Thread(counterpart string) ([]models.PrivateMessage, bool) {
	return e.threads.Messages(counterpart)
}

// PendingJobs returns the number of jobs awaiting a completion.
func (e *Engine) PendingJobs() int { return e.jobs.Len() }

// HandleFrame implements ws.Handler.
func (e *Engine) HandleFrame(epoch uint64, frame []byte) {
	e.post(func() { e.applyFrame(epoch, frame) })
}

// HandleState implements ws.Handler.
func (e *Engine) HandleState(state models.ConnectionState, epoch uint64, err error) {
	e.post(func() { e.applyState(state, epoch, err) })
}

// SendText posts a chat message. A payload that parses as an attachment is
// sent as one.
func (e *Engine) SendText(ctx context.Context, text string) error {
	return e.SendBody(ctx, models.ParseBody(text))
}

// SendBody posts a chat message and ends local typing.
func (e *Engine) SendBody(ctx context.Context, body models.Body) error {
	return e.do(ctx, func() error {
		if err := e.dispatcher.SendMessage(ctx, body); err != nil {
			return err
		}
		e.typing.LocalStop()
		return nil
	})
}

// SendAttachment uploads file off the loop and posts it as a message. The
// post is dropped with ErrStaleEpoch if the connection changed meanwhile.
func (e *Engine) SendAttachment(ctx context.Context, uploader upload.Uploader, file models.Upload) (models.Attachment, error) {
	var epoch uint64
	if err := e.do(ctx, func() error {
		if e.epoch == 0 {
			return dispatch.ErrIntentRejected
		}
		epoch = e.epoch
		return nil
	}); err != nil {
		return models.Attachment{}, err
	}

	att, err := uploader.Upload(ctx, file)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("upload %s: %w", file.Filename, err)
	}

	err = e.do(ctx, func() error {
		if e.epoch != epoch {
			log.Printf("attachment dropped filename=%s epoch=%d current=%d", file.Filename, epoch, e.epoch)
			return ErrStaleEpoch
		}
		return e.dispatcher.SendMessage(ctx, models.AttachmentBody(att))
	})
	return att, err
}

func (e *Engine) EditMessage(ctx context.Context, id, newBody string) error {
	return e.do(ctx, func() error { return e.dispatcher.EditMessage(ctx, id, newBody) })
}

func (e *Engine) DeleteMessage(ctx context.Context, id string) error {
	return e.do(ctx, func() error { return e.dispatcher.DeleteMessage(ctx, id) })
}

func (e *Engine) PinMessage(ctx context.Context, id string) error {
	return e.do(ctx, func() error { return e.dispatcher.PinMessage(ctx, id) })
}

func (e *Engine) MuteUser(ctx context.Context, username string) error {
	return e.do(ctx, func() error { return e.dispatcher.MuteUser(ctx, username) })
}

func (e *Engine) UnmuteUser(ctx context.Context, username string) error {
	return e.do(ctx, func() error { return e.dispatcher.UnmuteUser(ctx, username) })
}

func (e *Engine) BlockUser(ctx context.Context, username string) error {
	return e.do(ctx, func() error { return e.dispatcher.BlockUser(ctx, username) })
}

func (e *Engine) UnblockUser(ctx context.Context, username string) error {
	return e.do(ctx, func() error { return e.dispatcher.UnblockUser(ctx, username) })
}

// Keystroke reports local input activity.
func (e *Engine) Keystroke(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.epoch == 0 {
			return dispatch.ErrIntentRejected
		}
		e.typing.LocalKeystroke()
		return nil
	})
}

// StopTyping ends local typing right away.
func (e *Engine) StopTyping(ctx context.Context) error {
	return e.do(ctx, func() error {
		e.typing.LocalStop()
		return nil
	})
}

// OpenPrivateThread opens the thread with counterpart and requests its
// history the first time.
func (e *Engine) OpenPrivateThread(ctx context.Context, counterpart string) error {
	counterpart = strings.TrimSpace(counterpart)
	if counterpart == "" {
		return dispatch.ErrEmptyTarget
	}
	return e.do(ctx, func() error {
		if !e.threads.Open(counterpart) {
			return nil
		}
		return e.dispatcher.GetPrivateMessages(ctx, counterpart)
	})
}

func (e *Engine) SendPrivate(ctx context.Context, to, content string) error {
	return e.do(ctx, func() error { return e.dispatcher.SendPrivate(ctx, to, content) })
}

// SubmitJob starts a background job and returns its correlation id. The
// outcome arrives later as a job notice.
func (e *Engine) SubmitJob(ctx context.Context, kind, ref string) (string, error) {
	jobID := uuid.NewString()
	err := e.do(ctx, func() error {
		if e.epoch == 0 {
			return dispatch.ErrIntentRejected
		}
		if err := e.jobs.Issue(kind, jobID, e.epoch); err != nil {
			return err
		}
		if err := e.dispatcher.SubmitJob(ctx, jobID, kind, ref); err != nil {
			e.jobs.Resolve(jobID, "")
			return err
		}
		e.jobRefs[jobID] = ref
		return nil
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

func (e *Engine) post(fn func()) {
	e.inbox.push(fn)
}

// do runs fn on the loop and waits for its result. It must not be called
// from the loop itself.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	if !e.running.Load() {
		return ErrStopped
	}
	result := make(chan error, 1)
	e.post(func() { result <- fn() })
	select {
	case err := <-result:
		return err
	case <-e.stopped:
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) closeSession(reason string) {
	s := e.client.Current()
	if s == nil {
		return
	}
	e.closeReason = reason
	if e.epoch != 0 {
		e.ending = e.epoch
		e.clearEpoch()
	}
	if err := e.client.Close(s); err != nil && !errors.Is(err, ws.ErrSessionClosed) {
		log.Printf("session close error: %v", err)
	}
}

func (e *Engine) emitTyping(intent string) {
	var err error
	if intent == models.IntentTyping {
		err = e.dispatcher.TypingStarted(context.Background())
	} else {
		err = e.dispatcher.TypingStopped(context.Background())
	}
	if err != nil {
		log.Printf("typing intent dropped intent=%s: %v", intent, err)
	}
}

func (e *Engine) notify(n models.Notice) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	if n.Epoch == 0 {
		n.Epoch = e.epoch
	}
	n.State = e.State()

	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()
	for _, l := range listeners {
		l.Notify(n)
	}
}

func (e *Engine) applyState(state models.ConnectionState, epoch uint64, cause error) {
	e.state.Store(state)
	observability.SetSessionState(state.String())

	ended := e.epoch
	if ended == 0 {
		ended = e.ending
	}
	e.ending = 0
	n := models.Notice{Kind: models.NoticeState}
	if cause != nil {
		n.Error = cause.Error()
	}

	switch state {
	case models.StateConnected:
		e.epoch = epoch
		e.current.Store(epoch)
		e.historyApplied = false
		n.Epoch = epoch
		e.notify(n)
		e.notify(models.Notice{Kind: models.NoticeReady, Epoch: epoch, Subject: e.cfg.RoomID})
		return
	case models.StateReconnecting:
		e.clearEpoch()
		e.typing.Reset()
		e.cancelJobs(ended)
		n.Epoch, n.Text = ended, "reconnecting"
	case models.StateDisconnected, models.StateFailed:
		e.clearEpoch()
		e.reset()
		reason := e.closeReason
		if reason == "" {
			reason = "closed"
		}
		if state == models.StateFailed {
			reason = "failed"
		}
		n.Epoch, n.Text = ended, reason
	}
	e.notify(n)

	if state == models.StateFailed {
		e.notify(models.Notice{Kind: models.NoticeConnectionFailure, Subject: e.cfg.RoomID, Error: n.Error})
	}
}

func (e *Engine) clearEpoch() {
	e.epoch = 0
	e.current.Store(0)
}

func (e *Engine) reset() {
	e.messages.Reset()
	e.threads.Reset()
	e.roster.Reset()
	e.typing.Reset()
	if n := e.jobs.CancelAll(); n > 0 {
		log.Printf("pending jobs dropped count=%d", n)
	}
	e.jobRefs = make(map[string]string)
	e.historyApplied = false
}

func (e *Engine) applyFrame(epoch uint64, frame []byte) {
	if epoch == 0 || epoch != e.epoch {
		observability.IncInboundEvent("unknown", "stale")
		log.Printf("stale frame dropped epoch=%d current=%d", epoch, e.epoch)
		return
	}
	kind, mutations, err := events.Decode(frame)
	if err != nil {
		result := "decode_error"
		if errors.Is(err, events.ErrUnknownEvent) {
			result = "unknown"
		}
		observability.IncInboundEvent(kind, result)
		log.Printf("inbound event dropped type=%s: %v", kind, err)
		return
	}
	observability.IncInboundEvent(kind, "applied")
	for _, m := range mutations {
		e.apply(m)
		if e.epoch != epoch {
			return
		}
	}
}

func (e *Engine) apply(m events.Mutation) {
	switch m := m.(type) {
	case events.ReplaceHistory:
		if e.historyApplied {
			log.Printf("history replay ignored epoch=%d", e.epoch)
			return
		}
		e.historyApplied = true
		kept := m.Messages[:0:0]
		for _, msg := range m.Messages {
			if !e.roster.IsBlocked(msg.Author) {
				kept = append(kept, msg)
			}
		}
		e.messages.ApplyHistory(kept)
		e.notify(models.Notice{Kind: models.NoticeMessagesChanged})

	case events.AppendMessage:
		if e.roster.IsBlocked(m.Message.Author) {
			log.Printf("message from blocked user dropped username=%s id=%s", m.Message.Author, m.Message.ID)
			return
		}
		if e.messages.ApplyNewMessage(m.Message) {
			e.notify(models.Notice{Kind: models.NoticeMessagesChanged, Subject: m.Message.ID})
		}

	case events.DeleteMessage:
		if e.messages.ApplyDelete(m.ID) {
			e.notify(models.Notice{Kind: models.NoticeMessageDeleted, Subject: m.ID})
			e.notify(models.Notice{Kind: models.NoticeMessagesChanged, Subject: m.ID})
		}

	case events.EditMessage:
		if !e.messages.ApplyEdit(m.ID, m.NewBody, m.EditedAt, m.OriginalBody) {
			log.Printf("edit for unknown message ignored id=%s epoch=%d", m.ID, e.epoch)
			return
		}
		e.notify(models.Notice{Kind: models.NoticeMessagesChanged, Subject: m.ID})

	case events.TogglePin:
		if !e.messages.ApplyPinToggle(m.ID) {
			log.Printf("pin for unknown message ignored id=%s epoch=%d", m.ID, e.epoch)
			return
		}
		e.notify(models.Notice{Kind: models.NoticeMessagesChanged, Subject: m.ID})

	case events.ReplaceRoster:
		e.roster.ApplyRosterSnapshot(m.Participants)
		e.notify(models.Notice{Kind: models.NoticeRosterChanged})

	case events.MarkOnline:
		if e.roster.MarkOnline(m.Username, time.Now().UTC()) {
			e.notify(models.Notice{Kind: models.NoticeUserJoined, Subject: m.Username})
			e.notify(models.Notice{Kind: models.NoticeRosterChanged, Subject: m.Username})
		}

	case events.MarkOffline:
		if e.roster.MarkOffline(m.Username, m.LastSeen) {
			e.notify(models.Notice{Kind: models.NoticeUserLeft, Subject: m.Username})
			e.notify(models.Notice{Kind: models.NoticeRosterChanged, Subject: m.Username})
		}

	case events.SetMuted:
		if e.roster.SetMuted(m.Username, m.Muted) {
			kind := models.NoticeUserUnmuted
			if m.Muted {
				kind = models.NoticeUserMuted
			}
			e.notify(models.Notice{Kind: kind, Subject: m.Username})
			e.notify(models.Notice{Kind: models.NoticeRosterChanged, Subject: m.Username})
		}

	case events.Block:
		e.roster.RemoveOnBlock(m.Username)
		e.notify(models.Notice{Kind: models.NoticeUserBlocked, Subject: m.Username})
		e.notify(models.Notice{Kind: models.NoticeRosterChanged, Subject: m.Username})

	case events.Unblock:
		if e.roster.Unblock(m.Username) {
			e.notify(models.Notice{Kind: models.NoticeUserUnblocked, Subject: m.Username})
		}

	case events.SelfBlocked:
		reason := m.Reason
		if reason == "" {
			reason = ErrBlocked.Error()
		}
		log.Printf("local user blocked username=%s room=%s reason=%q", e.cfg.Identity.Username, e.cfg.RoomID, reason)
		e.notify(models.Notice{Kind: models.NoticeBlocked, Subject: e.cfg.Identity.Username, Text: reason, Error: ErrBlocked.Error()})
		e.closeSession("blocked")

	case events.TypingStarted:
		if m.Username == e.cfg.Identity.Username {
			return
		}
		e.typing.RemoteStart(m.Username)

	case events.TypingStopped:
		e.typing.RemoteStop(m.Username)

	case events.PrivateAppend:
		counterpart := m.Message.Counterpart(e.cfg.Identity.Username)
		if counterpart == "" || e.roster.IsBlocked(counterpart) {
			return
		}
		if !e.threads.Append(counterpart, m.Message) {
			return
		}
		if m.Message.From != e.cfg.Identity.Username {
			e.notify(models.Notice{Kind: models.NoticePrivateMessage, Subject: counterpart, Text: m.Message.Content})
		}
		e.notify(models.Notice{Kind: models.NoticeThreadChanged, Subject: counterpart})

	case events.PrivateHydrate:
		if e.threads.Hydrate(m.WithUser, m.Messages) {
			e.notify(models.Notice{Kind: models.NoticeThreadChanged, Subject: m.WithUser})
		}

	case events.JobCompleted:
		out, err := e.jobs.Resolve(m.JobID, m.Result)
		if err != nil {
			log.Printf("job completion ignored job_id=%s: %v", m.JobID, err)
			return
		}
		if out.Epoch != e.epoch {
			delete(e.jobRefs, m.JobID)
			log.Printf("job completion from epoch=%d dropped job_id=%s current=%d", out.Epoch, m.JobID, e.epoch)
			return
		}
		ref := e.jobRefs[m.JobID]
		delete(e.jobRefs, m.JobID)
		observability.IncJobOutcome("completed")
		e.notify(models.Notice{Kind: models.NoticeJobCompleted, RequestID: m.JobID, Subject: out.Kind, Text: m.Result})
		if out.Kind == JobSummarize {
			e.appendSystemMessage(summaryText(ref, m.Result))
		}

	case events.JobFailed:
		out, err := e.jobs.Fail(m.JobID, m.Error)
		if err != nil {
			log.Printf("job failure ignored job_id=%s: %v", m.JobID, err)
			return
		}
		if out.Epoch != e.epoch {
			delete(e.jobRefs, m.JobID)
			log.Printf("job failure from epoch=%d dropped job_id=%s current=%d", out.Epoch, m.JobID, e.epoch)
			return
		}
		delete(e.jobRefs, m.JobID)
		observability.IncJobOutcome("failed")
		e.notify(models.Notice{Kind: models.NoticeJobFailed, RequestID: m.JobID, Subject: out.Kind, Error: out.Err.Error()})

	default:
		log.Printf("unhandled mutation %T", m)
	}
}

func (e *Engine) appendSystemMessage(text string) {
	msg := models.Message{
		ID:       uuid.NewString(),
		Author:   systemAuthor,
		Body:     models.TextBody(text),
		SentAt:   time.Now().UTC(),
		Color:    systemColor,
		IsSystem: true,
	}
	if e.messages.ApplyNewMessage(msg) {
		e.notify(models.Notice{Kind: models.NoticeMessagesChanged, Subject: msg.ID})
	}
}

func summaryText(ref, result string) string {
	if ref == "" {
		return "Summary:\n\n" + result
	}
	return fmt.Sprintf("Summary of %s:\n\n%s", ref, result)
}

// cancelJobs fails the jobs issued during epoch. Their results, if they ever
// arrive on a later connection, no longer match a pending entry.
func (e *Engine) cancelJobs(epoch uint64) {
	for _, out := range e.jobs.CancelEpoch(epoch) {
		delete(e.jobRefs, out.RequestID)
		observability.IncJobOutcome("cancelled")
		log.Printf("job cancelled job_id=%s kind=%s epoch=%d", out.RequestID, out.Kind, out.Epoch)
		e.notify(models.Notice{Kind: models.NoticeJobFailed, RequestID: out.RequestID, Subject: out.Kind, Epoch: out.Epoch, Error: out.Err.Error()})
	}
}

func (e *Engine) reap() {
	for _, out := range e.jobs.Reap() {
		delete(e.jobRefs, out.RequestID)
		observability.IncJobOutcome("timeout")
		log.Printf("job timed out job_id=%s kind=%s issued_at=%s", out.RequestID, out.Kind, out.IssuedAt.Format(time.RFC3339))
		e.notify(models.Notice{Kind: models.NoticeJobTimeout, RequestID: out.RequestID, Subject: out.Kind, Error: out.Err.Error()})
	}
}
