package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
	"github.com/JakeFAU/newsarchive-crawler/internal/normalize"
)

const (
	rawDir       = "raw"
	processedDir = "processed"
	versionsDir  = "versions"
	topicsDir    = "by_topic"

	dateLayout = "2006-01-02"

	untitledTopic = "untitled"
)

// Config captures the parameters for the article store.
type Config struct {
	Root            string
	TopicLinks      string
	DefaultLanguage string
}

// Store writes and reads the archive tree.
type Store struct {
	root        string
	defaultLang string
	hasher      crawler.Hasher
	clock       crawler.Clock
	dates       *normalize.DateParser
	topics      TopicReference
	logger      *zap.Logger
}

// New creates the root if needed, verifies it is writable and picks the
// topic reference strategy.
func New(cfg Config, hasher crawler.Hasher, clock crawler.Clock, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("archive root is required")
	}
	if hasher == nil || clock == nil {
		return nil, fmt.Errorf("archive store requires a hasher and a clock")
	}
	info, err := os.Stat(cfg.Root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.Root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create archive root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat archive root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("archive root %s is not a directory", cfg.Root)
	}

	check := filepath.Join(cfg.Root, ".writable_test")
	if err := os.WriteFile(check, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("archive root is not writable: %w", err)
	}
	if err := os.Remove(check); err != nil {
		return nil, fmt.Errorf("clean up writability check file: %w", err)
	}

	topics, err := NewTopicReference(cfg.TopicLinks, cfg.Root)
	if err != nil {
		return nil, err
	}
	lang := cfg.DefaultLanguage
	if lang == "" {
		lang = "fr"
	}
	logger = logging.OrNop(logger)
	logger.Debug("archive store ready", zap.String("root", cfg.Root), zap.String("topic_links", topics.Kind()))
	return &Store{
		root:        cfg.Root,
		defaultLang: lang,
		hasher:      hasher,
		clock:       clock,
		dates:       normalize.NewDateParser(logger),
		topics:      topics,
		logger:      logger,
	}, nil
}

// Root returns the storage root.
func (s *Store) Root() string { return s.root }

// RawPath returns the raw capture path for baseID.
func (s *Store) RawPath(baseID string) string {
	return filepath.Join(s.root, rawDir, baseID+".txt")
}

// CanonicalPath returns the canonical record path for baseID.
func (s *Store) CanonicalPath(baseID string) string {
	return filepath.Join(s.root, processedDir, baseID+".json")
}

// VersionPath returns the version file path for id under baseID.
func (s *Store) VersionPath(baseID, id string) string {
	return filepath.Join(s.root, processedDir, versionsDir, baseID, id+".json")
}

// TopicPath returns the reference path of baseID under the topic directory for term.
func (s *Store) TopicPath(term, baseID string) string {
	return filepath.Join(s.topicDir(term), baseID+".json")
}

// topicDir maps term to its directory under by_topic. Terms with no
// filename-safe characters share the untitled directory.
func (s *Store) topicDir(term string) string {
	name := normalize.Filename(term)
	if name == "" {
		name = untitledTopic
	}
	return filepath.Join(s.root, topicsDir, name)
}

// Save stores one article: the raw capture if absent, a new version file,
// the canonical record and the topic reference for the search term.
func (s *Store) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return SaveResult{}, err
	}
	if strings.TrimSpace(req.RawText) == "" {
		return SaveResult{}, fmt.Errorf("save %s: empty article text", req.URL)
	}

	now := s.clock.Now()
	date := s.dates.Normalize(req.RawDate, now).Format(dateLayout)
	baseID, err := BaseID(s.hasher, date, req.Newspaper, req.URL, req.RawText)
	if err != nil {
		return SaveResult{}, storageErr("derive identity", err)
	}
	corr := s.fillCorrection(req.RawText, req.Correction)
	id := VersionID(baseID, corr.Method, corr.Language, s.defaultLang)

	if err := s.ensureDirs(baseID, req.SearchTerm); err != nil {
		return SaveResult{}, err
	}

	rawPath := s.RawPath(baseID)
	rawCreated, err := writeExclusive(rawPath, []byte(req.RawText))
	if err != nil {
		return SaveResult{}, storageErr("write raw capture", err)
	}
	original := req.RawText
	if rawCreated {
		s.logger.Info("raw content saved", zap.String("path", rawPath))
	} else {
		// The first capture stays the original even when a later one differs past the hashed prefix.
		if original, err = s.RawText(baseID); err != nil {
			return SaveResult{}, storageErr("read raw capture", err)
		}
	}

	existing := s.versionIDs(baseID)
	canonicalPath := s.CanonicalPath(baseID)
	prev, _ := s.readRecord(canonicalPath)

	rec := ArticleRecord{
		ID:               id,
		BaseID:           baseID,
		Title:            req.Title,
		Newspaper:        req.Newspaper,
		Date:             date,
		Topics:           mergeTopics(prev.Topics, req.SearchTerm),
		URL:              req.URL,
		RawPath:          rawPath,
		Content:          corr.Text,
		OriginalContent:  original,
		SpellCorrected:   corr.Corrected,
		CorrectionMethod: corr.Method,
		Language:         corr.Language,
		WordCount:        len(strings.Fields(corr.Text)),
		Canton:           req.Canton,
		CreatedAt:        now,
		Versions:         appendVersion(existing, id),
	}

	res, err := s.commit(rec)
	if err != nil {
		return SaveResult{}, err
	}
	res.RawCreated = rawCreated
	if strings.TrimSpace(req.SearchTerm) != "" {
		if err := s.topics.Put(s.TopicPath(req.SearchTerm, baseID), canonicalPath, baseID); err != nil {
			return SaveResult{}, storageErr("write topic reference", err)
		}
	}
	return res, nil
}

// Recorrect records a new version of baseID built from its immutable raw
// capture and corr. The canonical metadata (title, topics, url) is kept and
// the version ID carries a timestamp so repeated runs never collide.
func (s *Store) Recorrect(ctx context.Context, baseID string, corr Correction) (SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return SaveResult{}, err
	}
	canonical, err := s.Load(baseID)
	if err != nil {
		return SaveResult{}, err
	}
	raw, err := s.RawText(baseID)
	if err != nil {
		return SaveResult{}, err
	}
	now := s.clock.Now()
	corr = s.fillCorrection(raw, corr)
	id := VersionID(baseID, corr.Method, corr.Language, s.defaultLang) + "_" + now.Format("20060102150405")

	rec := canonical
	rec.ID = id
	rec.Content = corr.Text
	rec.OriginalContent = raw
	rec.SpellCorrected = corr.Corrected
	rec.CorrectionMethod = corr.Method
	rec.Language = corr.Language
	rec.WordCount = len(strings.Fields(corr.Text))
	rec.CreatedAt = now
	rec.Versions = appendVersion(s.versionIDs(baseID), id)

	if err := os.MkdirAll(filepath.Dir(s.VersionPath(baseID, id)), 0o750); err != nil {
		return SaveResult{}, storageErr("create version directory", err)
	}
	return s.commit(rec)
}

// Load reads the canonical record for baseID.
func (s *Store) Load(baseID string) (ArticleRecord, error) {
	if err := validID(baseID); err != nil {
		return ArticleRecord{}, err
	}
	rec, err := s.readRecord(s.CanonicalPath(baseID))
	if err != nil {
		return ArticleRecord{}, fmt.Errorf("load %s: %w", baseID, err)
	}
	return rec, nil
}

// RawText returns the immutable raw capture for baseID.
func (s *Store) RawText(baseID string) (string, error) {
	if err := validID(baseID); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.RawPath(baseID)) // #nosec G304 -- path built from a validated id
	if err != nil {
		return "", fmt.Errorf("read raw capture %s: %w", baseID, err)
	}
	return string(data), nil
}

// ListVersions returns every readable version of baseID, newest first.
// Unreadable files are skipped with a warning.
func (s *Store) ListVersions(baseID string) ([]VersionInfo, error) {
	if err := validID(baseID); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, processedDir, versionsDir, baseID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", baseID, err)
	}
	var out []VersionInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		rec, err := s.readRecord(path)
		if err != nil || rec.ID == "" {
			s.logger.Warn("skipping unreadable version file", zap.String("path", path), zap.Error(err))
			continue
		}
		method := rec.CorrectionMethod
		if method == "" {
			method = methodNone
		}
		lang := rec.Language
		if lang == "" {
			lang = s.defaultLang
		}
		out = append(out, VersionInfo{
			ID:               rec.ID,
			CorrectionMethod: method,
			Language:         lang,
			WordCount:        rec.WordCount,
			CreatedAt:        rec.CreatedAt,
			Path:             path,
		})
	}
	slices.SortStableFunc(out, func(a, b VersionInfo) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// ResolveTopic returns the canonical paths referenced under the topic directory for term.
func (s *Store) ResolveTopic(term string) ([]string, error) {
	dir := s.topicDir(term)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list topic %q: %w", term, err)
	}
	var out []string
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		target, err := s.topics.Resolve(filepath.Join(dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable topic reference", zap.String("topic", term), zap.String("entry", entry.Name()), zap.Error(err))
			continue
		}
		out = append(out, target)
	}
	return out, nil
}

// commit writes the version file exclusively and then overwrites the
// canonical record.
func (s *Store) commit(rec ArticleRecord) (SaveResult, error) {
	data, err := encodeRecord(rec)
	if err != nil {
		return SaveResult{}, storageErr("encode record", err)
	}
	versionPath := s.VersionPath(rec.BaseID, rec.ID)
	created, err := writeExclusive(versionPath, data)
	if err != nil {
		return SaveResult{}, storageErr("write version", err)
	}
	if created {
		s.logger.Info("version saved", zap.String("path", versionPath))
	} else {
		s.logger.Debug("version already present; left untouched", zap.String("path", versionPath))
	}
	canonicalPath := s.CanonicalPath(rec.BaseID)
	if err := writeReplace(canonicalPath, data); err != nil {
		return SaveResult{}, storageErr("write canonical record", err)
	}

	light := rec
	light.Content = ""
	return SaveResult{
		Record:         light,
		VersionPath:    versionPath,
		CanonicalPath:  canonicalPath,
		VersionCreated: created,
	}, nil
}

func (s *Store) fillCorrection(raw string, c Correction) Correction {
	if c.Method == "" {
		c.Method = methodNone
	}
	if c.Language == "" {
		c.Language = s.defaultLang
	}
	if c.Text == "" {
		c.Text = raw
		c.Corrected = false
	}
	return c
}

func (s *Store) ensureDirs(baseID, term string) error {
	dirs := []string{
		filepath.Join(s.root, rawDir),
		filepath.Join(s.root, processedDir, versionsDir, baseID),
	}
	if strings.TrimSpace(term) != "" {
		dirs = append(dirs, s.topicDir(term))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return storageErr("create directory", err)
		}
	}
	return nil
}

// versionIDs lists the IDs already stored for baseID, oldest first.
func (s *Store) versionIDs(baseID string) []string {
	infos, err := s.ListVersions(baseID)
	if err != nil {
		s.logger.Warn("listing existing versions failed", zap.String("base_id", baseID), zap.Error(err))
		return nil
	}
	ids := make([]string, 0, len(infos))
	for i := len(infos) - 1; i >= 0; i-- {
		ids = append(ids, infos[i].ID)
	}
	return ids
}

func (s *Store) readRecord(path string) (ArticleRecord, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path built from the archive root
	if err != nil {
		return ArticleRecord{}, err
	}
	var rec ArticleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return ArticleRecord{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec, nil
}

func encodeRecord(rec ArticleRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeExclusive creates path with data. It reports false without error when
// the file already exists.
func writeExclusive(path string, data []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) // #nosec G304 -- path built from the archive root
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return false, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return false, err
	}
	return true, nil
}

// writeReplace overwrites path through a temporary sibling and a rename so
// readers never observe a partial record.
func writeReplace(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func mergeTopics(prev []string, term string) []string {
	out := make([]string, 0, len(prev)+1)
	for _, t := range prev {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	if term != "" && !slices.Contains(out, term) {
		out = append(out, term)
	}
	return out
}

func appendVersion(existing []string, id string) []string {
	out := slices.DeleteFunc(slices.Clone(existing), func(v string) bool { return v == id })
	return append(out, id)
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid article id %q", id)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, crawler.ErrStorage, err)
}
