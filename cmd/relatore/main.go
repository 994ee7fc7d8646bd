package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"relatore/internal/config"
	"relatore/internal/gemini"
	"relatore/internal/knowledge"
	"relatore/internal/logging"
	"relatore/internal/session"
	"relatore/internal/slides"
)

var (
	// Global flags
	verbose    bool
	apiKey     string
	configPath string
	webSearch  bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "relatore",
	Short: "relatore - knowledge-grounded assistant with presentation export",
	Long: `relatore is an interactive assistant grounded on your own documents.

Every answer is produced by a Gemini chat session whose system
instruction embeds the full text of your knowledge sources and letter
templates. Asking for a presentation turns the same knowledge into an
illustrated slide deck that can be exported as a PDF.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if apiKey != "" {
			cfg.LLM.APIKey = apiKey
		}
		if verbose {
			cfg.Logging.Level = "debug"
			cfg.Logging.Console = true
		}
		logger = logging.New(cfg.Logging)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd.Context())
	},
}

// sourceCmd manages knowledge sources
var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage knowledge source documents",
}

var sourceAddCmd = &cobra.Command{
	Use:   "add [files...]",
	Short: "Add text files as knowledge sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return addDocuments(args, false)
	},
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored knowledge sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDocuments(false)
	},
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a knowledge source by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return removeDocument(args[0], false)
	},
}

// templateCmd manages letter templates
var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage letter templates",
}

var templateAddCmd = &cobra.Command{
	Use:   "add [files...]",
	Short: "Add text files as letter templates",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return addDocuments(args, true)
	},
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the stored letter templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDocuments(true)
	},
}

var templateRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a letter template by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return removeDocument(args[0], true)
	},
}

// searchCmd runs a semantic search over the stored sources
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantic search over the stored knowledge sources",
	Long: `Embeds the query and every stored source with the Gemini embedding
model and prints the best-matching documents by cosine similarity.
Embeddings are cached in the local database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

// presentCmd builds a deck and exports it in one shot
var presentCmd = &cobra.Command{
	Use:   "present [topic]",
	Short: "Generate an illustrated presentation and export it as PDF",
	Long: `Asks the model for a slide deck on the given topic, generates one
image per slide, renders each slide in a headless browser and writes
a landscape A4 PDF with one page per slide.

Slides whose image generation fails are kept with a placeholder; the
export always completes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPresent,
}

var presentOutput string

// statusCmd shows the local state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and stored document counts",
	RunE:  showStatus,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML")
	rootCmd.PersistentFlags().BoolVar(&webSearch, "web-search", false, "Ground answers with Google Search")

	presentCmd.Flags().StringVarP(&presentOutput, "output", "o", "presentation.pdf", "Output PDF path")

	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceRemoveCmd)
	templateCmd.AddCommand(templateAddCmd)
	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateRemoveCmd)

	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(presentCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// geminiBackend adapts the concrete client to the session backend
// interface.
type geminiBackend struct {
	client *gemini.Client
}

func (b geminiBackend) NewChat(instruction string, search bool) session.Chat {
	return b.client.NewChat(instruction, search)
}

func (b geminiBackend) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) ([]byte, error) {
	return b.client.GenerateStructured(ctx, prompt, schema)
}

func newGeminiClient() *gemini.Client {
	return gemini.NewClientWithConfig(gemini.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		ImageModel: cfg.LLM.ImageModel,
		Timeout:    cfg.LLMTimeout(),
		MaxRetries: 2,
	}, logger)
}

func openStore() (*knowledge.Store, error) {
	store, err := knowledge.OpenStore(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// addDocuments extracts text from the given files and persists them in
// the named set.
func addDocuments(paths []string, templates bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := loadSet(store, templates)
	if err != nil {
		return err
	}
	set := knowledge.NewSet()
	set.Replace(docs)

	extractor := knowledge.PlainTextExtractor{}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		text, err := extractor.ExtractText(name, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if !set.Add(knowledge.Document{Name: name, Text: text}) {
			fmt.Printf("skipped %s: a document with that name already exists\n", name)
			continue
		}
		fmt.Printf("added %s (%d bytes)\n", name, len(text))
	}
	return saveSet(store, set.Documents(), templates)
}

func listDocuments(templates bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := loadSet(store, templates)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("no documents stored")
		return nil
	}
	for _, doc := range docs {
		fmt.Printf("%-40s %6d bytes\n", doc.Name, len(doc.Text))
	}
	return nil
}

func removeDocument(name string, templates bool) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := loadSet(store, templates)
	if err != nil {
		return err
	}
	set := knowledge.NewSet()
	set.Replace(docs)
	if !set.Remove(name) {
		return fmt.Errorf("no document named %q", name)
	}
	fmt.Printf("removed %s\n", name)
	return saveSet(store, set.Documents(), templates)
}

func loadSet(store *knowledge.Store, templates bool) ([]knowledge.Document, error) {
	if templates {
		return store.LoadTemplates()
	}
	return store.LoadSources()
}

func saveSet(store *knowledge.Store, docs []knowledge.Document, templates bool) error {
	if templates {
		return store.SaveTemplates(docs)
	}
	return store.SaveSources(docs)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := store.LoadSources()
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("no sources stored; add some with: relatore source add <files>")
		return nil
	}

	embedder, err := knowledge.NewGenAIEmbedder(cfg.LLM.APIKey, cfg.LLM.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	searcher := knowledge.NewSearcher(embedder, store)

	ctx := cmd.Context()
	if err := searcher.Index(ctx, docs); err != nil {
		return fmt.Errorf("index sources: %w", err)
	}
	matches, err := searcher.Search(ctx, query, 5)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(matches) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, match := range matches {
		fmt.Printf("%.3f  %s\n", match.Score, match.Name)
	}
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("data dir:     %s\n", cfg.Storage.Dir)
	fmt.Printf("model:        %s\n", cfg.LLM.Model)
	fmt.Printf("image model:  %s\n", cfg.LLM.ImageModel)
	fmt.Printf("sources:      %d\n", len(sources))
	fmt.Printf("templates:    %d\n", len(templates))
	if cfg.LLM.APIKey == "" {
		fmt.Println("warning: no API key configured (set GEMINI_API_KEY)")
	}
	return nil
}

func newManager(store *knowledge.Store) (*session.Manager, error) {
	client := newGeminiClient()
	mgr, err := session.NewManager(session.Options{
		BaseInstruction: cfg.Prompt.BaseInstruction,
		WelcomeMessage:  cfg.Prompt.WelcomeMessage,
		Backend:         geminiBackend{client: client},
		Builder:         slides.NewBuilder(client, logger),
		Store:           store,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	if webSearch || cfg.LLM.EnableWebSearch {
		mgr.SetWebSearch(true)
	}
	if cfg.Audio.VoiceReplies {
		mgr.SetVoiceReplies(true)
	}
	if cfg.Audio.Voice != "" {
		mgr.SetVoiceName(cfg.Audio.Voice)
	}

	sources, err := store.LoadSources()
	if err != nil {
		return nil, err
	}
	templates, err := store.LoadTemplates()
	if err != nil {
		return nil, err
	}
	for _, doc := range sources {
		mgr.AddSource(doc)
	}
	for _, doc := range templates {
		mgr.AddTemplate(doc)
	}
	return mgr, nil
}
