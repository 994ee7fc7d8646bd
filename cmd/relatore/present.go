package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"relatore/internal/export"
	"relatore/internal/prompt"
	"relatore/internal/slides"
)

// consoleProgress prints pipeline updates to stdout.
type consoleProgress struct{}

func (consoleProgress) SlideStarted(index, total int) {
	fmt.Printf("generating image %d/%d...\n", index+1, total)
}

func (consoleProgress) SlideFinished(index, total int, failed bool) {
	if failed {
		fmt.Printf("image %d/%d failed, continuing\n", index+1, total)
	}
}

func (consoleProgress) Notice(text string) {
	fmt.Println(text)
}

func runPresent(cmd *cobra.Command, args []string) error {
	topic := strings.Join(args, " ")
	ctx := cmd.Context()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sources, err := store.LoadSources()
	if err != nil {
		return err
	}
	templates, err := store.LoadTemplates()
	if err != nil {
		return err
	}

	client := newGeminiClient()
	instruction := prompt.Assemble(cfg.Prompt.BaseInstruction, sources, templates)
	deckPrompt := fmt.Sprintf(
		"%s\n\nCreate a slide deck about: %s\nAnswer strictly as JSON matching the provided schema.",
		instruction, topic)

	fmt.Println("requesting slide deck...")
	raw, err := client.GenerateStructured(ctx, deckPrompt, slides.Schema())
	if err != nil {
		return fmt.Errorf("generate deck: %w", err)
	}
	specs, err := slides.ParseDeck(raw)
	if err != nil {
		return fmt.Errorf("parse deck: %w", err)
	}
	fmt.Printf("deck has %d slides\n", len(specs))

	builder := slides.NewBuilder(client, logger)
	deck := builder.Build(ctx, specs, consoleProgress{})

	if err := writeDeckPDF(ctx, deck, presentOutput); err != nil {
		return err
	}
	fmt.Println("wrote", presentOutput)
	return nil
}

// writeDeckPDF renders every slide in a headless browser and writes the
// PDF. One page per slide, always.
func writeDeckPDF(ctx context.Context, deck []slides.Slide, path string) error {
	renderer := export.NewRodRenderer(cfg.Export.ViewportWidth, cfg.Export.ViewportHeight)
	defer renderer.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	exporter := export.NewExporter(renderer, logger)
	return exporter.Export(ctx, deck, f)
}
