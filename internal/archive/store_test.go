package archive

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/newsarchive-crawler/internal/clock/system"
	"github.com/JakeFAU/newsarchive-crawler/internal/hash/md5"
)

var start = time.Date(2024, time.May, 1, 9, 30, 0, 0, time.UTC)

const articleText = "Die Landsgemeinde hat am Sonntag beschlossen, das Frauenstimmrecht einzuführen."

func newTestStore(t *testing.T, links string) (*Store, *system.Fixed) {
	t.Helper()
	clk := system.NewFixed(start)
	store, err := New(Config{Root: t.TempDir(), TopicLinks: links, DefaultLanguage: "fr"}, md5.New(), clk, zap.NewNop())
	require.NoError(t, err)
	return store, clk
}

func baseRequest() SaveRequest {
	return SaveRequest{
		RawText:    articleText,
		URL:        "https://archive.test/?a=d&d=NZZ19800314-01.2.3",
		SearchTerm: "Frauenstimmrecht",
		Title:      "Landsgemeinde",
		Newspaper:  "Neue Zürcher Zeitung",
		RawDate:    "14. März 1980",
		Canton:     "ZH",
	}
}

func readJSON(t *testing.T, path string) ArticleRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec ArticleRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func TestSaveWritesLayout(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, TopicLinksAuto)
	req := baseRequest()
	res, err := store.Save(context.Background(), req)
	require.NoError(t, err)

	wantBase, err := BaseID(md5.New(), "1980-03-14", req.Newspaper, req.URL, req.RawText)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(wantBase, "article_1980-03-14_neue_zurcher_zeitung_"))
	require.Len(t, strings.TrimPrefix(wantBase, "article_1980-03-14_neue_zurcher_zeitung_"), 8)

	rec := res.Record
	require.Equal(t, wantBase, rec.BaseID)
	require.Equal(t, wantBase+"_none", rec.ID)
	require.Empty(t, rec.Content, "returned record is lightweight")
	require.Equal(t, articleText, rec.OriginalContent)
	require.Equal(t, []string{"Frauenstimmrecht"}, rec.Topics)
	require.Equal(t, []string{rec.ID}, rec.Versions)
	require.Equal(t, "none", rec.CorrectionMethod)
	require.Equal(t, "fr", rec.Language)
	require.False(t, rec.SpellCorrected)
	require.Equal(t, 9, rec.WordCount)
	require.True(t, res.RawCreated)
	require.True(t, res.VersionCreated)

	raw, err := os.ReadFile(store.RawPath(wantBase))
	require.NoError(t, err)
	require.Equal(t, articleText, string(raw))

	require.Equal(t, store.VersionPath(wantBase, rec.ID), res.VersionPath)
	version := readJSON(t, res.VersionPath)
	require.Equal(t, articleText, version.Content)

	canonical := readJSON(t, store.CanonicalPath(wantBase))
	require.Equal(t, rec.ID, canonical.ID)
	require.Equal(t, articleText, canonical.Content)

	refs, err := store.ResolveTopic("Frauenstimmrecht")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	abs, err := filepath.Abs(store.CanonicalPath(wantBase))
	require.NoError(t, err)
	require.Contains(t, []string{abs, store.CanonicalPath(wantBase)}, refs[0])
}

func TestSaveKeepsFirstRawCapture(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t, TopicLinksPointer)
	first := baseRequest()
	first.RawText = strings.Repeat("a", 200) + " first tail"
	res1, err := store.Save(context.Background(), first)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	second := first
	second.RawText = strings.Repeat("a", 200) + " second tail"
	res2, err := store.Save(context.Background(), second)
	require.NoError(t, err)

	require.Equal(t, res1.Record.BaseID, res2.Record.BaseID, "identity only depends on the first 200 characters")
	require.False(t, res2.RawCreated)
	raw, err := store.RawText(res1.Record.BaseID)
	require.NoError(t, err)
	require.Equal(t, first.RawText, raw)

	require.Equal(t, first.RawText, res2.Record.OriginalContent)
	canonical := readJSON(t, res2.CanonicalPath)
	require.Equal(t, first.RawText, canonical.OriginalContent)
	require.Equal(t, second.RawText, canonical.Content)
}

func TestSaveExistingVersionLeftUntouched(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t, TopicLinksPointer)
	res1, err := store.Save(context.Background(), baseRequest())
	require.NoError(t, err)

	clk.Advance(time.Hour)
	res2, err := store.Save(context.Background(), baseRequest())
	require.NoError(t, err)
	require.False(t, res2.VersionCreated)
	require.Equal(t, res1.VersionPath, res2.VersionPath)
	require.Equal(t, []string{res1.Record.ID}, res2.Record.Versions)

	version := readJSON(t, res1.VersionPath)
	require.True(t, version.CreatedAt.Equal(start))
	canonical := readJSON(t, res2.CanonicalPath)
	require.True(t, canonical.CreatedAt.Equal(start.Add(time.Hour)))
}

func TestSaveMergesTopics(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, TopicLinksPointer)
	req := baseRequest()
	_, err := store.Save(context.Background(), req)
	require.NoError(t, err)

	req.SearchTerm = "Landsgemeinde Glarus"
	res, err := store.Save(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"Frauenstimmrecht", "Landsgemeinde Glarus"}, res.Record.Topics)

	for _, term := range []string{"Frauenstimmrecht", "Landsgemeinde Glarus"} {
		refs, err := store.ResolveTopic(term)
		require.NoError(t, err)
		require.Equal(t, []string{store.CanonicalPath(res.Record.BaseID)}, refs)
	}
	_, err = os.Stat(filepath.Join(store.Root(), "by_topic", "landsgemeinde_glarus"))
	require.NoError(t, err)
}

func TestSaveUnsafeTopicUsesUntitledDirectory(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, TopicLinksPointer)
	req := baseRequest()
	req.SearchTerm = "«»?"
	res, err := store.Save(context.Background(), req)
	require.NoError(t, err)

	ref := filepath.Join(store.Root(), "by_topic", "untitled", res.Record.BaseID+".json")
	require.Equal(t, ref, store.TopicPath(req.SearchTerm, res.Record.BaseID))
	_, err = os.Stat(ref)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.Root(), "by_topic", res.Record.BaseID+".json"))
	require.True(t, os.IsNotExist(err))

	refs, err := store.ResolveTopic(req.SearchTerm)
	require.NoError(t, err)
	require.Equal(t, []string{store.CanonicalPath(res.Record.BaseID)}, refs)
}

func TestVersionLineage(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t, TopicLinksAuto)
	variants := []Correction{
		{},
		{Text: "korrigiert fr", Method: "mistral", Language: "fr", Corrected: true},
		{Text: "korrigiert de", Method: "mistral", Language: "de", Corrected: true},
	}
	var baseID string
	var ids []string
	for _, c := range variants {
		req := baseRequest()
		req.Correction = c
		res, err := store.Save(context.Background(), req)
		require.NoError(t, err)
		baseID = res.Record.BaseID
		ids = append(ids, res.Record.ID)
		clk.Advance(time.Minute)
	}
	require.Equal(t, []string{baseID + "_none", baseID + "_mistral", baseID + "_mistral_de"}, ids)

	versions, err := store.ListVersions(baseID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, ids[2], versions[0].ID)
	require.Equal(t, ids[1], versions[1].ID)
	require.Equal(t, ids[0], versions[2].ID)
	require.Equal(t, "de", versions[0].Language)
	require.Equal(t, 2, versions[0].WordCount)

	canonical, err := store.Load(baseID)
	require.NoError(t, err)
	require.Equal(t, ids[2], canonical.ID)
	require.Equal(t, "korrigiert de", canonical.Content)
	require.Equal(t, articleText, canonical.OriginalContent)
	require.Equal(t, ids, canonical.Versions)

	for _, v := range versions {
		rec := readJSON(t, v.Path)
		require.Equal(t, v.ID, rec.ID)
	}
}

func TestListVersionsSkipsUnreadableFiles(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	store, err := New(Config{Root: t.TempDir(), TopicLinks: TopicLinksPointer}, md5.New(), system.NewFixed(start), zap.New(core))
	require.NoError(t, err)

	res, err := store.Save(context.Background(), baseRequest())
	require.NoError(t, err)
	broken := filepath.Join(filepath.Dir(res.VersionPath), "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0o600))

	versions, err := store.ListVersions(res.Record.BaseID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, 1, logs.FilterMessage("skipping unreadable version file").Len())

	missing, err := store.ListVersions("article_1900-01-01_none_00000000")
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestRecorrectAddsVersionFromRaw(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t, TopicLinksPointer)
	res, err := store.Save(context.Background(), baseRequest())
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	out, err := store.Recorrect(context.Background(), res.Record.BaseID, Correction{
		Text: "Die Landsgemeinde beschloss es.", Method: "mistral", Language: "fr", Corrected: true,
	})
	require.NoError(t, err)
	require.Equal(t, res.Record.BaseID+"_mistral_20240501113000", out.Record.ID)
	require.Equal(t, res.Record.Title, out.Record.Title)
	require.Equal(t, []string{res.Record.ID, out.Record.ID}, out.Record.Versions)

	canonical, err := store.Load(res.Record.BaseID)
	require.NoError(t, err)
	require.Equal(t, "Die Landsgemeinde beschloss es.", canonical.Content)
	require.True(t, canonical.SpellCorrected)

	raw, err := store.RawText(res.Record.BaseID)
	require.NoError(t, err)
	require.Equal(t, articleText, raw)

	_, err = store.Recorrect(context.Background(), "article_missing", Correction{})
	require.Error(t, err)
}

func TestSaveUnparseableDateUsesClock(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, TopicLinksPointer)
	req := baseRequest()
	req.RawDate = "keine Angabe"
	res, err := store.Save(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "2024-05-01", res.Record.Date)
}

func TestSaveRejectsEmptyTextAndCanceledContext(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, TopicLinksPointer)
	req := baseRequest()
	req.RawText = "  "
	_, err := store.Save(context.Background(), req)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Save(ctx, baseRequest())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewValidatesRoot(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, md5.New(), system.New(), nil)
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = New(Config{Root: file}, md5.New(), system.New(), nil)
	require.Error(t, err)

	_, err = New(Config{Root: t.TempDir(), TopicLinks: "hardlink"}, md5.New(), system.New(), nil)
	require.Error(t, err)

	nested := filepath.Join(t.TempDir(), "a", "b")
	_, err = New(Config{Root: nested}, md5.New(), system.New(), nil)
	require.NoError(t, err)
	require.DirExists(t, nested)
}

func TestReadersRejectPathIDs(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, TopicLinksPointer)
	_, err := store.Load("../etc")
	require.Error(t, err)
	_, err = store.RawText("a/b")
	require.Error(t, err)
	_, err = store.ListVersions("")
	require.Error(t, err)
}
