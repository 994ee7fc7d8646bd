package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"relatore/internal/capture"
	"relatore/internal/knowledge"
	"relatore/internal/session"
	"relatore/internal/transcript"
)

const replHelp = `Commands:
  /doc <path>       Stage a document for examination (next turn only)
  /image <path>     Attach an image to the next turn
  /clear            Clear staged inputs
  /source <path>    Add a knowledge source
  /template <path>  Add a letter template
  /sources          List the active knowledge sources
  /search on|off    Toggle Google Search grounding
  /voice on|off     Toggle spoken replies
  /export <path>    Export the last presentation as PDF
  /reset            Start a fresh conversation
  /quit             Exit`

// runInteractive is the default chat loop on stdin.
func runInteractive(ctx context.Context) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mgr, err := newManager(store)
	if err != nil {
		return err
	}
	defer mgr.Close()

	// Drop-in ingestion: files appearing under the knowledge dir become
	// sources without an explicit command.
	if dir := cfg.Storage.KnowledgeDir; dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Warn("knowledge directory unavailable", zap.Error(err))
		} else {
			watchSet := knowledge.NewSet()
			watcher, werr := knowledge.NewWatcher(dir, watchSet, knowledge.PlainTextExtractor{}, func() {
				for _, doc := range watchSet.Documents() {
					mgr.AddSource(doc)
				}
			}, logger)
			if werr != nil {
				logger.Warn("knowledge directory watcher unavailable", zap.Error(werr))
			} else {
				defer watcher.Close()
			}
		}
	}

	printed := printNewMessages(mgr, 0)
	fmt.Println("(type /help for commands)")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := replCommand(ctx, mgr, line); quit {
				return nil
			}
			printed = printNewMessages(mgr, printed)
			continue
		}

		hadDeck := mgr.ShowPresentation()
		mgr.Submit(line)
		printed = printNewMessages(mgr, printed)
		if mgr.ShowPresentation() && !hadDeck {
			printDeck(mgr)
		}
	}
}

// replCommand handles one slash command. Returns true on /quit.
func replCommand(ctx context.Context, mgr *session.Manager, line string) bool {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(replHelp)
	case "/doc":
		if arg == "" {
			fmt.Println("usage: /doc <path>")
			break
		}
		if err := stageDocument(mgr, arg); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Printf("document %s staged for the next turn\n", filepath.Base(arg))
		}
	case "/image":
		if arg == "" {
			fmt.Println("usage: /image <path>")
			break
		}
		if err := stageImage(mgr, arg); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Printf("image %s attached to the next turn\n", filepath.Base(arg))
		}
	case "/clear":
		mgr.ClearStaged()
		fmt.Println("staged inputs cleared")
	case "/source", "/template":
		if arg == "" {
			fmt.Printf("usage: %s <path>\n", fields[0])
			break
		}
		if err := addToManager(mgr, arg, fields[0] == "/template"); err != nil {
			fmt.Println("error:", err)
		}
	case "/sources":
		docs := mgr.Sources()
		if len(docs) == 0 {
			fmt.Println("no knowledge sources")
		}
		for _, doc := range docs {
			fmt.Printf("%-40s %6d bytes\n", doc.Name, len(doc.Text))
		}
	case "/search":
		mgr.SetWebSearch(arg == "on")
		fmt.Println("web search:", onOff(mgr.WebSearch()))
	case "/voice":
		mgr.SetVoiceReplies(arg == "on")
	case "/export":
		if arg == "" {
			arg = "presentation.pdf"
		}
		if err := exportDeck(ctx, mgr, arg); err != nil {
			fmt.Println("error:", err)
		} else {
			fmt.Println("wrote", arg)
		}
	case "/reset":
		mgr.Reconfigure()
	default:
		fmt.Println("unknown command; /help lists the available ones")
	}
	return false
}

func stageDocument(mgr *session.Manager, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return mgr.StageDocument(filepath.Base(path), f)
}

func stageImage(mgr *session.Manager, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mime := imageMIME(path)
	if mime == "" {
		return fmt.Errorf("unsupported image type: %s", filepath.Ext(path))
	}
	return mgr.StageImage(capture.Image{Data: data, MIME: mime, Name: filepath.Base(path)})
}

func imageMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return ""
}

func addToManager(mgr *session.Manager, path string, template bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	name := filepath.Base(path)
	text, err := knowledge.PlainTextExtractor{}.ExtractText(name, f)
	if err != nil {
		return err
	}
	doc := knowledge.Document{Name: name, Text: text}
	if template {
		mgr.AddTemplate(doc)
	} else {
		mgr.AddSource(doc)
	}
	fmt.Printf("added %s\n", name)
	return nil
}

func exportDeck(ctx context.Context, mgr *session.Manager, path string) error {
	deck := mgr.Deck()
	if len(deck) == 0 {
		return fmt.Errorf("no presentation to export yet")
	}
	return writeDeckPDF(ctx, deck, path)
}

// printNewMessages prints transcript entries past the given index and
// returns the new high-water mark.
func printNewMessages(mgr *session.Manager, from int) int {
	msgs := mgr.Transcript().Messages()
	for _, msg := range msgs[from:] {
		printMessage(msg)
	}
	return len(msgs)
}

func printMessage(msg transcript.Message) {
	switch msg.Sender {
	case transcript.SenderUser:
		fmt.Println("you:", msg.Text)
	case transcript.SenderAI:
		fmt.Println("ai:", msg.Text)
		for _, src := range msg.Sources {
			fmt.Printf("    source: %s <%s>\n", src.Title, src.URL)
		}
	default:
		fmt.Println("**", msg.Text)
	}
}

func printDeck(mgr *session.Manager) {
	deck := mgr.Deck()
	fmt.Printf("presentation ready: %d slides (/export writes the PDF)\n", len(deck))
	for i, slide := range deck {
		marker := ""
		if slide.Image == nil {
			marker = "  [image unavailable]"
		}
		fmt.Printf("  %d. %s%s\n", i+1, slide.Title, marker)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
