package gemini

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
)

// ImagePayload is an image attached to an outgoing turn.
type ImagePayload struct {
	MIMEType string
	Data     []byte
}

// Turn is one outgoing user message. Image is optional; when set the
// request is sent as a multipart text+image payload.
type Turn struct {
	Text  string
	Image *ImagePayload
}

// Source is a web grounding citation attached to a reply.
type Source struct {
	Title string
	URL   string
}

// Reply is the model's answer to a turn.
type Reply struct {
	Text    string
	Sources []Source
}

// Chat is a stateful chat session handle. The system instruction and
// the web-search flag are fixed at creation; changing either means
// discarding the handle and creating a new one. Not safe for concurrent
// use; the session manager guarantees a single in-flight turn.
type Chat struct {
	client      *Client
	instruction string
	webSearch   bool
	history     []Content
}

// NewChat creates a fresh chat session with the given system
// instruction.
func (c *Client) NewChat(instruction string, webSearch bool) *Chat {
	c.logger.Info("chat session created",
		zap.Int("instruction_len", len(instruction)),
		zap.Bool("web_search", webSearch))
	return &Chat{
		client:      c,
		instruction: instruction,
		webSearch:   webSearch,
	}
}

// WebSearchEnabled reports whether the session uses search grounding.
func (ch *Chat) WebSearchEnabled() bool {
	return ch.webSearch
}

// HistoryLen returns the number of stored history entries.
func (ch *Chat) HistoryLen() int {
	return len(ch.history)
}

// Send appends the turn to the session history, sends the full
// conversation and returns the reply with any grounding citations.
func (ch *Chat) Send(ctx context.Context, turn Turn) (Reply, error) {
	parts := []Part{{Text: turn.Text}}
	if turn.Image != nil {
		parts = append(parts, Part{InlineData: &InlineData{
			MIMEType: turn.Image.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(turn.Image.Data),
		}})
	}
	userContent := Content{Role: "user", Parts: parts}

	req := GenerateRequest{
		Contents: append(append([]Content{}, ch.history...), userContent),
		SystemInstruction: &Content{
			Parts: []Part{{Text: ch.instruction}},
		},
	}
	if ch.webSearch {
		req.Tools = []Tool{{GoogleSearch: &GoogleSearch{}}}
	}

	resp, err := ch.client.generateContent(ctx, ch.client.model, req)
	if err != nil {
		return Reply{}, fmt.Errorf("chat send: %w", err)
	}

	text := responseText(resp)
	reply := Reply{Text: text, Sources: groundingSources(resp)}

	ch.history = append(ch.history, userContent)
	ch.history = append(ch.history, Content{Role: "model", Parts: []Part{{Text: text}}})
	return reply, nil
}

func groundingSources(resp *GenerateResponse) []Source {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}
	var sources []Source
	for _, chunk := range meta.GroundingChunks {
		if chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		sources = append(sources, Source{Title: chunk.Web.Title, URL: chunk.Web.URI})
	}
	return sources
}
