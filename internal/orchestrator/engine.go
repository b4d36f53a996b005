// Package orchestrator drives chat, comparison and media requests against the
// generation gateway and keeps the resulting view state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/manash/polychat/internal/mode"
	"github.com/manash/polychat/internal/provider"
	"github.com/manash/polychat/internal/session"
	"github.com/manash/polychat/pkg/models"
)

var (
	ErrBusy         = errors.New("a request of this kind is already in progress")
	ErrWrongMode    = errors.New("operation not available in the current mode")
	ErrMalformedApp = errors.New("model did not return a usable app")
	ErrNoActiveUser = errors.New("sign in to start a chat")
)

const compareFailure = "Failed to get response"

// ChatFailure is shown as the last error when a chat dispatch fails. The
// transcript gets the backend's own description.
const ChatFailure = "Failed to get response from AI. Please try again."

type Engine struct {
	gateway  provider.Gateway
	sessions *session.Manager
	modes    *mode.Controller
	registry *models.ModelRegistry
	logger   *slog.Logger

	mu          sync.Mutex
	state       State
	compareSeq  uint64
	epoch       uint64
	nextSub     int
	subscribers map[int]func(State)
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an engine in chat mode with the default chat model selected.
func New(gw provider.Gateway, sessions *session.Manager, modes *mode.Controller, registry *models.ModelRegistry, opts ...Option) (*Engine, error) {
	e := &Engine{
		gateway:     gw,
		sessions:    sessions,
		modes:       modes,
		registry:    registry,
		logger:      slog.Default(),
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(e)
	}

	m, err := modes.DefaultFor(models.ModeChat)
	if err != nil {
		return nil, err
	}
	e.state = State{
		Mode:     models.ModeChat,
		Selected: []*models.Model{m},
		Config:   models.DefaultGenerationConfig(),
		Busy:     make(map[Kind]bool),
	}
	return e, nil
}

func (e *Engine) Registry() *models.ModelRegistry {
	return e.registry
}

func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every state change and
// returns a function that removes it. fn runs on the goroutine that made the
// change and must not call back into the engine synchronously.
func (e *Engine) Subscribe(fn func(State)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subscribers, id)
	}
}

// SendMessage appends prompt to the active session, creating one when none
// is active, and appends the selected model's reply or an error message.
func (e *Engine) SendMessage(ctx context.Context, prompt string) (models.Message, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return models.Message{}, models.ErrEmptyPrompt
	}

	e.mu.Lock()
	if e.state.Mode != models.ModeChat {
		e.mu.Unlock()
		return models.Message{}, fmt.Errorf("%w: chat needs chat mode, current is %s", ErrWrongMode, e.state.Mode)
	}
	if e.state.Busy[KindChat] {
		e.mu.Unlock()
		return models.Message{}, ErrBusy
	}
	m := e.state.Model()
	cfg := e.state.Config
	e.state.Busy[KindChat] = true
	e.state.LastError = ""
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.state.Busy[KindChat] = false
		e.mu.Unlock()
		e.publish()
	}()

	userMsg := models.NewUserMessage(prompt)
	sessionID := e.sessions.ActiveID()
	if sessionID == "" {
		sess, err := e.sessions.CreateSession(ctx, userMsg)
		if err != nil {
			if errors.Is(err, session.ErrNoUser) {
				err = ErrNoActiveUser
			}
			e.fail(err.Error())
			return models.Message{}, err
		}
		sessionID = sess.ID
	} else if _, err := e.sessions.AppendMessages(ctx, sessionID, userMsg); err != nil {
		e.fail(err.Error())
		return models.Message{}, err
	}
	e.setActiveSession(sessionID)
	e.publish()

	text, genErr := e.gateway.GenerateText(ctx, prompt, m, cfg)
	reply := models.NewAssistantMessage(text, m)
	if genErr != nil {
		e.logger.Warn("chat dispatch failed", "model", m.ID, "err", genErr)
		reply = models.NewErrorMessage("Error: "+provider.Describe(genErr), m)
		e.fail(ChatFailure)
	}

	// The session is looked up again here, so a concurrent rename or append
	// elsewhere is merged rather than overwritten.
	if _, err := e.sessions.AppendMessages(ctx, sessionID, reply); err != nil {
		e.logger.Warn("could not record reply", "session", sessionID, "err", err)
	}

	if genErr != nil {
		return reply, fmt.Errorf("chat with %s: %w", m.Name, genErr)
	}
	return reply, nil
}

// Compare sends prompt to every model concurrently. Placeholders are
// published at once; the returned slice matches the order of ms and is only
// produced after every call has settled. A later Compare supersedes this one
// in the engine state.
func (e *Engine) Compare(ctx context.Context, prompt string, ms []*models.Model) ([]models.ComparisonResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, models.ErrEmptyPrompt
	}

	e.mu.Lock()
	if ms == nil {
		ms = e.state.Selected
	}
	if err := e.modes.Validate(models.ModeCompare, ms); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	cfg := e.state.Config
	e.compareSeq++
	id := e.compareSeq
	e.state.ComparisonID = id
	e.state.Comparison = models.PendingResults(ms)
	e.state.LastError = ""
	e.mu.Unlock()
	e.publish()

	results := models.PendingResults(ms)
	var g errgroup.Group
	for i, m := range ms {
		g.Go(func() error {
			text, err := e.gateway.GenerateText(ctx, prompt, m, cfg)
			if err != nil {
				msg := provider.Describe(err)
				if msg == "" {
					msg = compareFailure
				}
				results[i].State = models.ResultFailed
				results[i].Error = msg
				e.logger.Debug("compare call failed", "model", m.ID, "err", err)
				return nil
			}
			results[i].State = models.ResultDone
			results[i].Response = text
			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	current := e.state.ComparisonID == id
	if current {
		e.state.Comparison = results
	}
	e.mu.Unlock()
	if current {
		e.publish()
	} else {
		e.logger.Debug("comparison superseded", "id", id)
	}
	return results, nil
}

// GenerateImage edits the attached input media when there is one, otherwise
// generates from the prompt alone.
func (e *Engine) GenerateImage(ctx context.Context, prompt string) (*models.InputMedia, error) {
	m, input, epoch, err := e.beginMedia(KindImage, models.ModeImageGeneration, func(s *State) {
		s.GeneratedImage = nil
	})
	if err != nil {
		return nil, err
	}

	var img *models.InputMedia
	if input != nil {
		img, err = e.gateway.EditImage(ctx, prompt, input, m)
	} else {
		img, err = e.gateway.GenerateImage(ctx, prompt, m)
	}

	e.endMedia(KindImage, epoch, err, func(s *State) { s.GeneratedImage = img })
	if err != nil {
		return nil, err
	}
	return img, nil
}

// GenerateVideo runs a video generation seeded by the attached image, if
// any. Progress updates overwrite a single slot that is emptied when the
// request settles; updates that arrive afterwards are dropped.
func (e *Engine) GenerateVideo(ctx context.Context, prompt string) (*models.VideoResource, error) {
	m, input, epoch, err := e.beginMedia(KindVideo, models.ModeVideoGeneration, func(s *State) {
		s.GeneratedVideo = nil
		s.Progress = ""
	})
	if err != nil {
		return nil, err
	}

	var (
		sinkMu  sync.Mutex
		settled bool
	)
	sink := func(status string) {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		if settled {
			return
		}
		e.mu.Lock()
		live := e.epoch == epoch
		if live {
			e.state.Progress = status
		}
		e.mu.Unlock()
		if live {
			e.publish()
		}
	}

	video, err := e.gateway.GenerateVideo(ctx, prompt, input, m, sink)

	sinkMu.Lock()
	settled = true
	sinkMu.Unlock()

	e.endMedia(KindVideo, epoch, err, func(s *State) { s.GeneratedVideo = video })
	if err != nil {
		return nil, err
	}
	return video, nil
}

const buildInstruction = `You are building a small self-contained web app.
Respond with a single JSON object with exactly the keys "html", "css" and "javascript".
"html" holds only the markup that goes inside <body>. Do not add commentary.

Request: `

// BuildApp asks the selected model for a web app and parses the reply into
// its three parts.
func (e *Engine) BuildApp(ctx context.Context, prompt string) (*models.WebAppCode, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, models.ErrEmptyPrompt
	}
	m, _, epoch, err := e.beginMedia(KindBuild, models.ModeAppBuilder, func(s *State) {
		s.GeneratedApp = nil
	})
	if err != nil {
		return nil, err
	}

	var app *models.WebAppCode
	e.mu.Lock()
	cfg := e.state.Config
	e.mu.Unlock()
	text, err := e.gateway.GenerateText(ctx, buildInstruction+prompt, m, cfg)
	if err == nil {
		app, err = ParseWebApp(text)
	}

	e.endMedia(KindBuild, epoch, err, func(s *State) { s.GeneratedApp = app })
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (e *Engine) beginMedia(k Kind, want models.Mode, reset func(*State)) (*models.Model, *models.InputMedia, uint64, error) {
	e.mu.Lock()
	if e.state.Mode != want {
		e.mu.Unlock()
		return nil, nil, 0, fmt.Errorf("%w: %s needs %s mode, current is %s", ErrWrongMode, k, want, e.state.Mode)
	}
	if e.state.Busy[k] {
		e.mu.Unlock()
		return nil, nil, 0, ErrBusy
	}
	e.state.Busy[k] = true
	e.state.LastError = ""
	reset(&e.state)
	m, input, epoch := e.state.Model(), e.state.InputMedia, e.epoch
	e.mu.Unlock()
	e.publish()
	return m, input, epoch, nil
}

// endMedia clears the busy flag and stores the outcome, unless the mode was
// changed while the request was in flight.
func (e *Engine) endMedia(k Kind, epoch uint64, err error, store func(*State)) {
	e.mu.Lock()
	e.state.Busy[k] = false
	if e.epoch == epoch {
		if k == KindVideo {
			e.state.Progress = ""
		}
		if err != nil {
			e.state.LastError = provider.Describe(err)
		} else {
			store(&e.state)
		}
	}
	e.mu.Unlock()
	if err != nil {
		e.logger.Warn("generation failed", "kind", k, "err", err)
	}
	e.publish()
}

// SetMode switches the interaction mode, normalizing the selection. Any
// actual change clears transient outputs and detaches the active session.
func (e *Engine) SetMode(ctx context.Context, to models.Mode) error {
	return e.transition(ctx, to, nil)
}

// LaunchTask switches to the task's mode with its recommended model.
func (e *Engine) LaunchTask(ctx context.Context, taskID string) error {
	t, err := e.registry.Task(taskID)
	if err != nil {
		return err
	}
	return e.transition(ctx, t.TargetMode, t)
}

func (e *Engine) transition(ctx context.Context, to models.Mode, task *models.Task) error {
	e.mu.Lock()
	out, err := e.modes.Transition(e.state.Mode, to, e.state.Selected, task)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.state.Mode = out.Mode
	e.state.Selected = out.Selection
	if out.Changed {
		e.resetLocked()
	}
	e.mu.Unlock()

	if out.Changed {
		e.detachSession(ctx)
	}
	e.publish()
	return nil
}

// SelectModels replaces the selection after checking it against the mode.
func (e *Engine) SelectModels(ids []string) error {
	ms, err := e.registry.Resolve(ids)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if err := e.modes.Validate(e.state.Mode, ms); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state.Selected = ms
	e.mu.Unlock()
	e.publish()
	return nil
}

// ToggleModel adds or removes id in compare mode and replaces the selection
// in every other mode.
func (e *Engine) ToggleModel(id string) error {
	m, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrModelNotFound, id)
	}
	e.mu.Lock()
	sel, err := e.modes.Toggle(e.state.Mode, e.state.Selected, m)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.state.Selected = sel
	e.mu.Unlock()
	e.publish()
	return nil
}

func (e *Engine) SetConfig(cfg models.GenerationConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.state.Config = cfg
	e.mu.Unlock()
	e.publish()
	return nil
}

// UpdateConfigField applies a textual edit. Invalid input leaves the
// configuration as it was.
func (e *Engine) UpdateConfigField(field, value string) (models.GenerationConfig, error) {
	e.mu.Lock()
	next, err := e.state.Config.WithField(field, value)
	e.state.Config = next
	e.mu.Unlock()
	if err == nil {
		e.publish()
	}
	return next, err
}

func (e *Engine) SetInputMedia(in *models.InputMedia) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrInvalidInput, err)
	}
	e.mu.Lock()
	e.state.InputMedia = in
	e.mu.Unlock()
	e.publish()
	return nil
}

func (e *Engine) ClearInputMedia() {
	e.mu.Lock()
	e.state.InputMedia = nil
	e.mu.Unlock()
	e.publish()
}

// NewSession detaches the active session so the next message starts a new
// one. Outside chat mode it also returns to chat with the default model.
func (e *Engine) NewSession(ctx context.Context) error {
	e.mu.Lock()
	e.state.LastError = ""
	if e.state.Mode != models.ModeChat {
		m, err := e.modes.DefaultFor(models.ModeChat)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		e.state.Mode = models.ModeChat
		e.state.Selected = []*models.Model{m}
		e.resetLocked()
	}
	e.mu.Unlock()

	e.detachSession(ctx)
	e.publish()
	return nil
}

// SelectSession makes id the active session and switches to chat mode.
func (e *Engine) SelectSession(ctx context.Context, id string) error {
	if err := e.sessions.SetActive(ctx, id); err != nil {
		return err
	}

	e.mu.Lock()
	out, err := e.modes.Transition(e.state.Mode, models.ModeChat, e.state.Selected, nil)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.state.Mode = out.Mode
	e.state.Selected = out.Selection
	if out.Changed {
		e.resetLocked()
	}
	e.state.ActiveSessionID = id
	e.mu.Unlock()
	e.publish()
	return nil
}

// DeleteSession removes a session. Deleting the active one detaches it.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	if err := e.sessions.Delete(ctx, id); err != nil {
		return err
	}
	e.mu.Lock()
	if e.state.ActiveSessionID == id {
		e.state.ActiveSessionID = ""
	}
	e.mu.Unlock()
	e.publish()
	return nil
}

// SwitchUser loads userID's sessions, or unloads them when userID is empty.
func (e *Engine) SwitchUser(ctx context.Context, userID string) {
	activeID := ""
	if userID == "" {
		e.sessions.Unload()
	} else {
		_, activeID = e.sessions.Load(ctx, userID)
	}

	e.mu.Lock()
	e.state.UserID = userID
	e.state.ActiveSessionID = activeID
	e.resetLocked()
	e.mu.Unlock()
	e.publish()
}

// resetLocked clears transient outputs and invalidates in-flight media
// requests. Callers hold e.mu.
func (e *Engine) resetLocked() {
	e.state.clearTransient()
	e.state.ComparisonID = 0
	e.epoch++
}

func (e *Engine) detachSession(ctx context.Context) {
	if e.sessions.UserID() != "" {
		if err := e.sessions.SetActive(ctx, ""); err != nil {
			e.logger.Warn("could not clear active session", "err", err)
		}
	}
	e.setActiveSession("")
}

func (e *Engine) setActiveSession(id string) {
	e.mu.Lock()
	e.state.ActiveSessionID = id
	e.mu.Unlock()
}

func (e *Engine) fail(msg string) {
	e.mu.Lock()
	e.state.LastError = msg
	e.mu.Unlock()
}

func (e *Engine) snapshotLocked() State {
	return e.state.clone()
}

func (e *Engine) publish() {
	e.mu.Lock()
	if len(e.subscribers) == 0 {
		e.mu.Unlock()
		return
	}
	snap := e.snapshotLocked()
	subs := make([]func(State), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
