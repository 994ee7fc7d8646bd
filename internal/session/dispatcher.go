package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"relatore/internal/capture"
	"relatore/internal/gemini"
	"relatore/internal/knowledge"
	"relatore/internal/slides"
	"relatore/internal/transcript"
)

// presentationPattern matches the "build a presentation" keywords in
// English and Italian phrasing.
var presentationPattern = regexp.MustCompile(`(?i)\b(presentation|presentazione|slide|slides|slideshow|diapositive)\b`)

const defaultImagePrompt = "what do you see in this image?"

// isPresentationRequest classifies a turn's text. Structured-output
// mode is incompatible with image input, so the caller must also check
// that no image is attached.
func isPresentationRequest(text string) bool {
	return presentationPattern.MatchString(text)
}

// Submit runs one turn. It is rejected while processing, listening or
// rate-limited, and when no initiating modality is present (text,
// staged image or live screen stream). Rejection is a no-op: the
// transcript is untouched and no backend call is issued.
func (m *Manager) Submit(text string) {
	text = strings.TrimSpace(text)

	m.mu.Lock()
	if m.apiLocked || m.status != StatusIdle {
		m.mu.Unlock()
		return
	}
	screenLive := m.screenActiveLocked()
	if text == "" && m.staged.image == nil && !screenLive {
		m.mu.Unlock()
		return
	}

	m.status = StatusProcessing
	// Capture staged input by value before dispatch; the image is
	// cleared from the input bar immediately, the in-flight request is
	// unaffected. The chat handle is snapshotted too: a context change
	// landing mid-turn replaces it, and output produced against the old
	// handle must not reach the reset transcript.
	img := m.staged.image
	doc := m.staged.doc
	chat := m.chat
	m.staged.image = nil
	m.pending = ""
	m.mu.Unlock()

	// A new turn always cancels ongoing speech playback.
	m.synth.Cancel()

	defer func() {
		m.mu.Lock()
		m.status = StatusIdle
		if doc != nil && m.staged.doc == doc {
			// The document under examination is consumed exactly once.
			m.staged.doc = nil
		}
		m.mu.Unlock()
	}()

	ctx := context.Background()

	if screenLive {
		frame, err := m.screen.Frame(ctx)
		if err != nil {
			m.ifCurrent(chat, func() {
				m.tr.Append(transcript.SenderSystem,
					fmt.Sprintf("The screen frame could not be captured: %v", err))
			})
			return
		}
		img = &frame
	}

	if isPresentationRequest(text) && img == nil {
		m.runPresentationTurn(ctx, text, doc, chat)
		return
	}
	m.runChatTurn(ctx, text, img, doc, chat)
}

// ifCurrent runs fn under the lock only when chat is still the active
// handle. Output belonging to a session that a mid-turn reconfigure
// discarded is dropped, keeping the reset transcript at exactly one
// message.
func (m *Manager) ifCurrent(chat Chat, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chat != chat {
		return false
	}
	fn()
	return true
}

// runPresentationTurn drives structured slide generation followed by
// the serial image pipeline.
func (m *Manager) runPresentationTurn(ctx context.Context, text string, doc *knowledge.Document, chat Chat) {
	if !m.ifCurrent(chat, func() {
		m.tr.Append(transcript.SenderUser, text)
	}) {
		return
	}

	request := text
	if doc != nil {
		request = fmt.Sprintf(
			"Analyze the following document and answer strictly as JSON.\n\n--- DOCUMENT: %s ---\n%s\n--- END DOCUMENT ---\n\nREQUEST: %s",
			doc.Name, doc.Text, text)
	}

	raw, err := m.backend.GenerateStructured(ctx, request, slides.Schema())
	if err != nil {
		m.logger.Warn("structured generation failed", zap.Error(err))
		m.ifCurrent(chat, func() {
			m.tr.Append(transcript.SenderSystem,
				"The presentation could not be generated. Please try rephrasing your request.")
		})
		return
	}

	specs, err := slides.ParseDeck(raw)
	if err != nil {
		m.logger.Warn("slide response rejected", zap.Error(err))
		m.ifCurrent(chat, func() {
			m.tr.Append(transcript.SenderSystem,
				"The presentation could not be generated. Please try rephrasing your request.")
		})
		return
	}

	deck := m.builder.Build(ctx, specs, m.deckProgress(chat))

	if !m.ifCurrent(chat, func() {
		m.deck = deck
		m.showDeck = true
	}) {
		m.logger.Info("discarding deck built for a replaced session")
		return
	}
	m.logger.Info("presentation ready", zap.Int("slides", len(deck)))
}

// runChatTurn sends an ordinary turn, attaching the staged image or
// framing the document under examination as primary evidence.
func (m *Manager) runChatTurn(ctx context.Context, text string, img *capture.Image, doc *knowledge.Document, chat Chat) {
	turn := gemini.Turn{Text: text}
	userMsg := transcript.Message{Sender: transcript.SenderUser, Text: text}

	switch {
	case img != nil:
		if turn.Text == "" {
			turn.Text = defaultImagePrompt
			userMsg.Text = defaultImagePrompt
		}
		turn.Image = &gemini.ImagePayload{MIMEType: img.MIME, Data: img.Data}
		userMsg.Image = &transcript.Image{Data: img.Data, MIME: img.MIME, Name: img.Name}
	case doc != nil:
		turn.Text = fmt.Sprintf(
			"Treat the following document as the primary evidence for your answer, while still drawing on all available knowledge sources.\n\n--- DOCUMENT: %s ---\n%s\n--- END DOCUMENT ---\n\nQUESTION: %s",
			doc.Name, doc.Text, text)
	}

	if !m.ifCurrent(chat, func() {
		m.tr.AppendMessage(userMsg)
	}) {
		return
	}

	reply, err := chat.Send(ctx, turn)
	if err != nil {
		// Chat-branch failures are treated as likely rate limiting.
		m.logger.Warn("chat turn failed", zap.Error(err))
		m.ifCurrent(chat, func() {
			m.beginLockoutLocked()
			m.tr.Append(transcript.SenderSystem,
				"The assistant is temporarily unavailable, likely due to rate limiting. Please wait a minute before trying again.")
		})
		return
	}

	sources := make([]transcript.Source, 0, len(reply.Sources))
	for _, s := range reply.Sources {
		sources = append(sources, transcript.Source{Title: s.Title, URL: s.URL})
	}

	var speak bool
	if !m.ifCurrent(chat, func() {
		m.tr.AppendMessage(transcript.Message{
			Sender:  transcript.SenderAI,
			Text:    reply.Text,
			Sources: sources,
		})
		speak = m.voiceOut
	}) {
		m.logger.Info("discarding reply from a replaced session")
		return
	}
	if speak {
		if err := m.synth.Speak(reply.Text); err != nil {
			m.logger.Warn("speech playback failed", zap.Error(err))
		}
	}
}

// deckProgress adapts the pipeline's progress stream: per-slide updates
// are forwarded, the aggregated failure notice lands in the transcript
// unless the session was replaced mid-build.
func (m *Manager) deckProgress(chat Chat) slides.Progress {
	return &managerProgress{m: m, chat: chat}
}

type managerProgress struct {
	m    *Manager
	chat Chat
}

func (p *managerProgress) SlideStarted(index, total int) {
	p.m.progress.SlideStarted(index, total)
}

func (p *managerProgress) SlideFinished(index, total int, failed bool) {
	p.m.progress.SlideFinished(index, total, failed)
}

func (p *managerProgress) Notice(text string) {
	p.m.ifCurrent(p.chat, func() {
		p.m.tr.Append(transcript.SenderSystem, text)
	})
	p.m.progress.Notice(text)
}
