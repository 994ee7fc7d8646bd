package session

import (
	"context"
	"errors"
	"sync"

	"relatore/internal/capture"
	"relatore/internal/gemini"
	"relatore/internal/knowledge"
)

// fakeChat is a scripted backend chat handle. A non-nil block channel
// parks Send after the turn is recorded until the channel is closed.
type fakeChat struct {
	mu      sync.Mutex
	turns   []gemini.Turn
	replies []gemini.Reply
	err     error
	block   chan struct{}
}

func (c *fakeChat) Send(_ context.Context, turn gemini.Turn) (gemini.Reply, error) {
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	block := c.block
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return gemini.Reply{}, c.err
	}
	if len(c.replies) > 0 {
		r := c.replies[0]
		c.replies = c.replies[1:]
		return r, nil
	}
	return gemini.Reply{Text: "ok"}, nil
}

func (c *fakeChat) sent() []gemini.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]gemini.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// fakeBackend records chat creations and serves scripted structured
// responses.
type fakeBackend struct {
	mu            sync.Mutex
	chats         []*fakeChat
	instructions  []string
	webSearch     []bool
	structuredRaw []byte
	structuredErr error
}

func (b *fakeBackend) NewChat(instruction string, webSearch bool) Chat {
	b.mu.Lock()
	defer b.mu.Unlock()
	chat := &fakeChat{}
	b.chats = append(b.chats, chat)
	b.instructions = append(b.instructions, instruction)
	b.webSearch = append(b.webSearch, webSearch)
	return chat
}

func (b *fakeBackend) GenerateStructured(_ context.Context, _ string, _ map[string]any) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.structuredErr != nil {
		return nil, b.structuredErr
	}
	return b.structuredRaw, nil
}

func (b *fakeBackend) lastChat() *fakeChat {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.chats) == 0 {
		return nil
	}
	return b.chats[len(b.chats)-1]
}

func (b *fakeBackend) chatCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chats)
}

// fakeImageGen scripts per-call image results for the slide builder.
type fakeImageGen struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (g *fakeImageGen) GenerateImage(_ context.Context, _ string, _ gemini.ImageOptions) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failOn[g.calls] {
		return nil, errors.New("image synthesis failed")
	}
	return []byte("img"), nil
}

// fakeRecognizer exposes the subscribed events for tests to fire.
type fakeRecognizer struct {
	mu      sync.Mutex
	events  capture.SpeechEvents
	started int
	stopped int
	err     error
}

func (r *fakeRecognizer) Start(events capture.SpeechEvents) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = events
	r.started++
	return nil
}

func (r *fakeRecognizer) Stop() {
	r.mu.Lock()
	events := r.events
	r.stopped++
	r.mu.Unlock()
	if events.End != nil {
		events.End()
	}
}

func (r *fakeRecognizer) fireResult(text string) {
	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	events.Result(text)
}

func (r *fakeRecognizer) fireError(err capture.SpeechError) {
	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	events.Err(err)
}

// fakeSynth records playback requests.
type fakeSynth struct {
	mu        sync.Mutex
	spoken    []string
	cancelled int
	voice     string
}

func (s *fakeSynth) Speak(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *fakeSynth) Cancel() {
	s.mu.Lock()
	s.cancelled++
	s.mu.Unlock()
}

func (s *fakeSynth) SetVoice(v string) {
	s.mu.Lock()
	s.voice = v
	s.mu.Unlock()
}

func (s *fakeSynth) SetRate(float64) {}

// fakeScreen simulates a screen-capture stream.
type fakeScreen struct {
	mu      sync.Mutex
	active  bool
	frame   capture.Image
	onEnded func()
}

func (s *fakeScreen) Start(onEnded func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.onEnded = onEnded
	return nil
}

func (s *fakeScreen) Stop() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func (s *fakeScreen) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *fakeScreen) Frame(context.Context) (capture.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, nil
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) SaveSources([]knowledge.Document) error   { return errors.New("disk full") }
func (failingStore) SaveTemplates([]knowledge.Document) error { return errors.New("disk full") }
func (failingStore) SetPreference(string, string) error       { return errors.New("disk full") }
