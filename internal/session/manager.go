// Package session owns the conversation state machine: it guards the
// single in-flight backend turn, recreates the chat session when the
// context inputs change, and dispatches completed turns to the chat or
// presentation pipeline.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"relatore/internal/capture"
	"relatore/internal/gemini"
	"relatore/internal/knowledge"
	"relatore/internal/prompt"
	"relatore/internal/slides"
	"relatore/internal/transcript"
)

// Status is the conversation state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusListening  Status = "listening"
	StatusProcessing Status = "processing"
)

// DefaultLockout is the rate-limit cooldown applied after a failed chat
// turn. No early exit: only expiry clears it.
const DefaultLockout = 60 * time.Second

// Chat is one backend chat session handle.
type Chat interface {
	Send(ctx context.Context, turn gemini.Turn) (gemini.Reply, error)
}

// Backend creates chat sessions and serves structured generation.
type Backend interface {
	NewChat(instruction string, webSearch bool) Chat
	GenerateStructured(ctx context.Context, prompt string, schema map[string]any) ([]byte, error)
}

// Persister is the best-effort store for document sets and audio
// preferences. Failures are surfaced as system notices, never fatal.
type Persister interface {
	SaveSources(docs []knowledge.Document) error
	SaveTemplates(docs []knowledge.Document) error
	SetPreference(key, value string) error
}

// Options wires a Manager.
type Options struct {
	BaseInstruction string
	WelcomeMessage  string

	Backend    Backend
	Builder    *slides.Builder
	Extractor  knowledge.Extractor
	Store      Persister
	Recognizer capture.SpeechRecognizer
	Synth      capture.Synthesizer
	Screen     capture.ScreenCapturer
	Clipboard  capture.Clipboard

	Lockout  time.Duration
	Progress slides.Progress
	Logger   *zap.Logger
}

// stagedInput holds at most one of a pasted image or a document under
// examination.
type stagedInput struct {
	image *capture.Image
	doc   *knowledge.Document
}

// Manager is the session state machine. All mutable conversation state
// (chat handle, staged input, capture handles) is owned here and
// exposed only through its operations.
type Manager struct {
	mu sync.Mutex

	status    Status
	apiLocked bool
	lockTimer *time.Timer
	lockout   time.Duration

	baseInstruction string
	welcome         string
	webSearch       bool

	tr        *transcript.Transcript
	sources   *knowledge.Set
	templates *knowledge.Set
	staged    stagedInput
	pending   string

	backend Backend
	chat    Chat
	builder *slides.Builder

	extractor  knowledge.Extractor
	store      Persister
	recognizer capture.SpeechRecognizer
	synth      capture.Synthesizer
	screen     capture.ScreenCapturer
	clipboard  capture.Clipboard

	deck      []slides.Slide
	showDeck  bool
	voiceOut  bool
	progress  slides.Progress
	logger    *zap.Logger
	chatCount int
}

// NewManager builds a manager and creates the initial chat session.
func NewManager(opts Options) (*Manager, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if opts.Builder == nil {
		return nil, fmt.Errorf("slide builder is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Synth == nil {
		opts.Synth = capture.NopSynthesizer{}
	}
	if opts.Extractor == nil {
		opts.Extractor = knowledge.PlainTextExtractor{}
	}
	if opts.Lockout == 0 {
		opts.Lockout = DefaultLockout
	}
	if opts.Progress == nil {
		opts.Progress = slides.NopProgress{}
	}
	if opts.WelcomeMessage == "" {
		opts.WelcomeMessage = "Hello! How can I help you today?"
	}

	m := &Manager{
		status:          StatusIdle,
		lockout:         opts.Lockout,
		baseInstruction: opts.BaseInstruction,
		welcome:         opts.WelcomeMessage,
		tr:              transcript.New(),
		sources:         knowledge.NewSet(),
		templates:       knowledge.NewSet(),
		backend:         opts.Backend,
		builder:         opts.Builder,
		extractor:       opts.Extractor,
		store:           opts.Store,
		recognizer:      opts.Recognizer,
		synth:           opts.Synth,
		screen:          opts.Screen,
		clipboard:       opts.Clipboard,
		progress:        opts.Progress,
		logger:          opts.Logger,
	}
	m.mu.Lock()
	m.reconfigureLocked()
	m.mu.Unlock()
	return m, nil
}

// Close releases capture resources and pending timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockTimer != nil {
		m.lockTimer.Stop()
		m.lockTimer = nil
	}
	if m.screen != nil && m.screen.Active() {
		m.screen.Stop()
	}
	m.synth.Cancel()
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Locked reports whether the rate-limit cooldown is active.
func (m *Manager) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiLocked
}

// Transcript exposes the conversation history.
func (m *Manager) Transcript() *transcript.Transcript {
	return m.tr
}

// Deck returns a copy of the last finished presentation.
func (m *Manager) Deck() []slides.Slide {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]slides.Slide, len(m.deck))
	copy(out, m.deck)
	return out
}

// ShowPresentation reports whether a finished deck is ready to view.
func (m *Manager) ShowPresentation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.showDeck
}

// ChatSessions returns how many backend sessions have been created.
func (m *Manager) ChatSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatCount
}

// reconfigureLocked rebuilds the system context, replaces the chat
// handle and resets the transcript to the single welcome message. The
// explicit memory reset keeps stale context from lingering in an old
// session. Caller holds m.mu.
func (m *Manager) reconfigureLocked() {
	instruction := prompt.Assemble(m.baseInstruction, m.sources.Documents(), m.templates.Documents())
	m.chat = m.backend.NewChat(instruction, m.webSearch)
	m.chatCount++
	m.tr.Reset(m.welcome)
	m.showDeck = false
	m.deck = nil
	m.logger.Info("session reconfigured",
		zap.Int("sources", m.sources.Len()),
		zap.Int("templates", m.templates.Len()),
		zap.Bool("web_search", m.webSearch))
}

// Reconfigure rebuilds the backend session from the current context
// inputs.
func (m *Manager) Reconfigure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconfigureLocked()
}

// SetWebSearch toggles search grounding. A change recreates the chat
// session.
func (m *Manager) SetWebSearch(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.webSearch == enabled {
		return
	}
	m.webSearch = enabled
	m.reconfigureLocked()
}

// WebSearch reports whether search grounding is enabled.
func (m *Manager) WebSearch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.webSearch
}

// SetVoiceReplies toggles speaking assistant replies aloud. The
// preference is persisted best-effort.
func (m *Manager) SetVoiceReplies(enabled bool) {
	m.mu.Lock()
	m.voiceOut = enabled
	m.mu.Unlock()
	m.persist(func(p Persister) error {
		value := "false"
		if enabled {
			value = "true"
		}
		return p.SetPreference(knowledge.PrefVoiceReplies, value)
	})
}

// SetVoiceName selects the playback voice and persists it.
func (m *Manager) SetVoiceName(name string) {
	m.synth.SetVoice(name)
	m.persist(func(p Persister) error {
		return p.SetPreference(knowledge.PrefVoiceName, name)
	})
}

// AddSource extracts and adds one knowledge source. A duplicate name is
// silently dropped and the session is left untouched.
func (m *Manager) AddSource(doc knowledge.Document) {
	m.mu.Lock()
	if !m.sources.Add(doc) {
		m.mu.Unlock()
		return
	}
	m.reconfigureLocked()
	docs := m.sources.Documents()
	m.mu.Unlock()
	m.persist(func(p Persister) error { return p.SaveSources(docs) })
}

// RemoveSource deletes one knowledge source.
func (m *Manager) RemoveSource(name string) {
	m.mu.Lock()
	if !m.sources.Remove(name) {
		m.mu.Unlock()
		return
	}
	m.reconfigureLocked()
	docs := m.sources.Documents()
	m.mu.Unlock()
	m.persist(func(p Persister) error { return p.SaveSources(docs) })
}

// ClearSources removes every knowledge source.
func (m *Manager) ClearSources() {
	m.mu.Lock()
	if m.sources.Len() == 0 {
		m.mu.Unlock()
		return
	}
	m.sources.Clear()
	m.reconfigureLocked()
	m.mu.Unlock()
	m.persist(func(p Persister) error { return p.SaveSources(nil) })
}

// AddTemplate adds one letter template.
func (m *Manager) AddTemplate(doc knowledge.Document) {
	m.mu.Lock()
	if !m.templates.Add(doc) {
		m.mu.Unlock()
		return
	}
	m.reconfigureLocked()
	docs := m.templates.Documents()
	m.mu.Unlock()
	m.persist(func(p Persister) error { return p.SaveTemplates(docs) })
}

// RemoveTemplate deletes one letter template.
func (m *Manager) RemoveTemplate(name string) {
	m.mu.Lock()
	if !m.templates.Remove(name) {
		m.mu.Unlock()
		return
	}
	m.reconfigureLocked()
	docs := m.templates.Documents()
	m.mu.Unlock()
	m.persist(func(p Persister) error { return p.SaveTemplates(docs) })
}

// ClearTemplates removes every letter template.
func (m *Manager) ClearTemplates() {
	m.mu.Lock()
	if m.templates.Len() == 0 {
		m.mu.Unlock()
		return
	}
	m.templates.Clear()
	m.reconfigureLocked()
	m.mu.Unlock()
	m.persist(func(p Persister) error { return p.SaveTemplates(nil) })
}

// Sources returns the current knowledge sources.
func (m *Manager) Sources() []knowledge.Document {
	return m.sources.Documents()
}

// Templates returns the current letter templates.
func (m *Manager) Templates() []knowledge.Document {
	return m.templates.Documents()
}

// persist runs a best-effort store write. A failure becomes a system
// notice, never an error to the caller.
func (m *Manager) persist(write func(Persister) error) {
	if m.store == nil {
		return
	}
	if err := write(m.store); err != nil {
		m.logger.Warn("persistence failed", zap.Error(err))
		m.tr.Append(transcript.SenderSystem,
			"Your settings could not be saved; the session continues without persistence.")
	}
}

// SetPendingText updates the typed-but-unsent input text.
func (m *Manager) SetPendingText(text string) {
	m.mu.Lock()
	m.pending = text
	m.mu.Unlock()
}

// PendingText returns the typed-but-unsent input text.
func (m *Manager) PendingText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// StageImage stages a pasted image for the next turn. Staging clears
// any document under examination; an active screen stream excludes
// both.
func (m *Manager) StageImage(img capture.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screenActiveLocked() {
		return fmt.Errorf("screen capture is active")
	}
	m.staged = stagedInput{image: &img}
	return nil
}

// StageImageFromClipboard stages the clipboard image, if any.
func (m *Manager) StageImageFromClipboard() error {
	if m.clipboard == nil {
		return fmt.Errorf("clipboard not available")
	}
	img, ok := m.clipboard.Image()
	if !ok {
		return fmt.Errorf("no image on clipboard")
	}
	return m.StageImage(*img)
}

// StageDocument extracts a file and stages it as the document under
// examination. On extraction failure a system notice is appended and
// the staged state is left unchanged.
func (m *Manager) StageDocument(name string, r io.Reader) error {
	text, err := m.extractor.ExtractText(name, r)
	if err != nil {
		m.tr.Append(transcript.SenderSystem,
			fmt.Sprintf("The document %q could not be read: %v", name, err))
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screenActiveLocked() {
		return fmt.Errorf("screen capture is active")
	}
	m.staged = stagedInput{doc: &knowledge.Document{Name: name, Text: text}}
	return nil
}

// StagedImage returns the staged image, if any.
func (m *Manager) StagedImage() *capture.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staged.image
}

// StagedDocument returns the document under examination, if any.
func (m *Manager) StagedDocument() *knowledge.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staged.doc
}

// ClearStaged drops any staged input.
func (m *Manager) ClearStaged() {
	m.mu.Lock()
	m.staged = stagedInput{}
	m.mu.Unlock()
}

func (m *Manager) screenActiveLocked() bool {
	return m.screen != nil && m.screen.Active()
}

// ScreenActive reports whether a screen-capture stream is live.
func (m *Manager) ScreenActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screenActiveLocked()
}

// ToggleScreenCapture starts or stops the screen stream. Starting
// clears staged input; the stream also ends implicitly when the
// platform tears it down.
func (m *Manager) ToggleScreenCapture() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screen == nil {
		return fmt.Errorf("screen capture not available")
	}
	if m.screen.Active() {
		m.screen.Stop()
		return nil
	}
	if err := m.screen.Start(func() {
		m.logger.Info("screen capture ended by platform")
	}); err != nil {
		m.tr.Append(transcript.SenderSystem,
			fmt.Sprintf("Screen sharing could not be started: %v", err))
		return err
	}
	m.staged = stagedInput{}
	return nil
}

// StartListening begins voice capture. A turn needs exactly one
// initiating modality: the request is rejected while processing, while
// rate-limited, or while typed text or a staged image is pending.
func (m *Manager) StartListening() error {
	m.mu.Lock()
	if m.recognizer == nil {
		m.mu.Unlock()
		return fmt.Errorf("speech recognition not available")
	}
	if m.status != StatusIdle || m.apiLocked || m.pending != "" || m.staged.image != nil {
		m.mu.Unlock()
		return fmt.Errorf("cannot listen now")
	}
	m.status = StatusListening
	m.mu.Unlock()

	err := m.recognizer.Start(capture.SpeechEvents{
		Result: m.handleSpeechResult,
		End:    m.handleSpeechEnd,
		Err:    m.handleSpeechError,
	})
	if err != nil {
		m.mu.Lock()
		m.status = StatusIdle
		m.mu.Unlock()
		m.tr.Append(transcript.SenderSystem,
			fmt.Sprintf("Voice capture could not be started: %v", err))
		return err
	}
	return nil
}

// StopListening ends voice capture early. The recognizer's events
// drive the state transition.
func (m *Manager) StopListening() {
	m.mu.Lock()
	rec := m.recognizer
	listening := m.status == StatusListening
	m.mu.Unlock()
	if listening && rec != nil {
		rec.Stop()
	}
}

func (m *Manager) handleSpeechResult(text string) {
	m.mu.Lock()
	if m.status != StatusListening {
		m.mu.Unlock()
		return
	}
	if text == "" {
		m.status = StatusIdle
		m.mu.Unlock()
		return
	}
	if m.screenActiveLocked() {
		// Screen-sharing mode treats voice as dictation, not auto-send.
		m.pending = text
		m.status = StatusIdle
		m.mu.Unlock()
		return
	}
	m.status = StatusIdle
	m.mu.Unlock()
	m.Submit(text)
}

func (m *Manager) handleSpeechEnd() {
	m.mu.Lock()
	if m.status == StatusListening {
		m.status = StatusIdle
	}
	m.mu.Unlock()
}

func (m *Manager) handleSpeechError(err capture.SpeechError) {
	m.mu.Lock()
	if m.status == StatusListening {
		m.status = StatusIdle
	}
	m.mu.Unlock()

	var notice string
	switch err.Kind {
	case capture.ErrPermissionDenied:
		notice = "Microphone access was denied. Voice input is unavailable."
	case capture.ErrNoSpeech:
		notice = "No speech was detected. Please try again."
	default:
		notice = fmt.Sprintf("Voice capture failed: %v", err)
	}
	m.tr.Append(transcript.SenderSystem, notice)
}

// beginLockout starts the fixed rate-limit cooldown. Caller holds m.mu.
func (m *Manager) beginLockoutLocked() {
	m.apiLocked = true
	if m.lockTimer != nil {
		m.lockTimer.Stop()
	}
	m.lockTimer = time.AfterFunc(m.lockout, func() {
		m.mu.Lock()
		m.apiLocked = false
		m.lockTimer = nil
		m.mu.Unlock()
	})
	m.logger.Warn("rate-limit lockout engaged", zap.Duration("for", m.lockout))
}
