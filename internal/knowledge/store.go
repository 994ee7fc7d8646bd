package knowledge

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists the knowledge-source set, the template set and audio
// preferences. Persistence is best effort: callers surface write
// failures as non-fatal notices and keep going.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Audio preference keys.
const (
	PrefVoiceReplies = "voice_replies"
	PrefVoiceName    = "voice_name"
)

// Document set identifiers within the store.
const (
	setSources   = "sources"
	setTemplates = "templates"
)

// OpenStore creates or opens the store under dir.
func OpenStore(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "relatore.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		set_name TEXT NOT NULL,
		name     TEXT NOT NULL,
		text     TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (set_name, name)
	);

	CREATE TABLE IF NOT EXISTS preferences (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		set_name TEXT NOT NULL,
		name     TEXT NOT NULL,
		vector   TEXT NOT NULL,
		PRIMARY KEY (set_name, name)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSources persists the knowledge-source set.
func (s *Store) SaveSources(docs []Document) error {
	return s.saveSet(setSources, docs)
}

// SaveTemplates persists the letter-template set.
func (s *Store) SaveTemplates(docs []Document) error {
	return s.saveSet(setTemplates, docs)
}

// LoadSources returns the persisted knowledge sources in saved order.
func (s *Store) LoadSources() ([]Document, error) {
	return s.loadSet(setSources)
}

// LoadTemplates returns the persisted letter templates in saved order.
func (s *Store) LoadTemplates() ([]Document, error) {
	return s.loadSet(setTemplates)
}

func (s *Store) saveSet(set string, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM documents WHERE set_name = ?`, set); err != nil {
		return fmt.Errorf("clear %s: %w", set, err)
	}
	for i, doc := range docs {
		if _, err := tx.Exec(
			`INSERT INTO documents (set_name, name, text, position) VALUES (?, ?, ?, ?)`,
			set, doc.Name, doc.Text, i,
		); err != nil {
			return fmt.Errorf("insert %s/%s: %w", set, doc.Name, err)
		}
	}
	return tx.Commit()
}

func (s *Store) loadSet(set string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT name, text FROM documents WHERE set_name = ? ORDER BY position`, set)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", set, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.Name, &d.Text); err != nil {
			return nil, fmt.Errorf("scan %s: %w", set, err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SetPreference stores one audio preference value.
func (s *Store) SetPreference(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// Preference returns a stored preference value, or the fallback when
// the key is absent.
func (s *Store) Preference(key, fallback string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var value string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, nil
}

// SaveEmbedding stores the embedding vector for a source document.
func (s *Store) SaveEmbedding(name string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("marshal embedding %s: %w", name, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO embeddings (set_name, name, vector) VALUES (?, ?, ?)
		 ON CONFLICT(set_name, name) DO UPDATE SET vector = excluded.vector`,
		setSources, name, string(data))
	if err != nil {
		return fmt.Errorf("save embedding %s: %w", name, err)
	}
	return nil
}

// LoadEmbeddings returns all stored source embeddings keyed by name.
func (s *Store) LoadEmbeddings() (map[string][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT name, vector FROM embeddings WHERE set_name = ?`, setSources)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			continue
		}
		out[name] = vec
	}
	return out, rows.Err()
}
