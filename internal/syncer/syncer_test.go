package syncer

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"testing"
	"time"

	"propsync/internal/conflict"
	"propsync/internal/model"
	"propsync/internal/pathspec"
	"propsync/internal/registry"
	"propsync/internal/remote"
	"propsync/internal/remote/remotetest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const home = "/ws"

type scriptedPrompter struct {
	answers []int
	asked   int
}

func (p *scriptedPrompter) Choose(string, []string) (int, error) {
	idx := p.answers[p.asked]
	p.asked++
	return idx, nil
}

type memRecorder struct {
	results []model.SyncResult
}

func (r *memRecorder) Save(result model.SyncResult) error {
	r.results = append(r.results, result)
	return nil
}

type testEnv struct {
	fs       afero.Fs
	fake     *remotetest.Fake
	reg      *registry.Registry
	orch     *Orchestrator
	recorder *memRecorder
}

func newTestEnv(t *testing.T, strategy model.ConflictStrategy, prompter conflict.Prompter) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(home+"/src", 0755))

	reg := registry.New(t.TempDir())
	require.NoError(t, reg.Load())
	t.Cleanup(func() { _ = reg.Close() })

	fake := remotetest.New()
	orch := New(fake, fs, reg, conflict.NewResolver(fs, strategy, prompter), Options{
		Home:            home,
		InlineThreshold: 16,
		ChunkSize:       8,
	})

	rec := &memRecorder{}
	orch.SetRecorder(rec)

	return &testEnv{fs: fs, fake: fake, reg: reg, orch: orch, recorder: rec}
}

func (e *testEnv) write(t *testing.T, path string, data []byte, mod time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(e.fs, path, data, 0644))
	require.NoError(t, e.fs.Chtimes(path, mod, mod))
}

func (e *testEnv) spec(t *testing.T, path string) pathspec.PathSpec {
	t.Helper()
	s, err := pathspec.NewResolver(e.fs, false).Resolve(path, home, home)
	require.NoError(t, err)
	return s
}

func (e *testEnv) read(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(e.fs, path)
	require.NoError(t, err)
	return string(data)
}

var t0 = time.UnixMilli(1_700_000_000_000)

func TestPublishTwiceSkipsUnchanged(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.write(t, home+"/src/a/one.txt", []byte("one"), t0)
	env.write(t, home+"/src/a/two.json", []byte(`{"x":1}`), t0)

	first, err := env.orch.Publish(context.Background(), env.spec(t, "src/a/"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Found)
	assert.Equal(t, 2, first.Published())
	assert.Equal(t, 2, first.Created)

	second, err := env.orch.Publish(context.Background(), env.spec(t, "src/a/"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Found)
	assert.Equal(t, 0, second.Published())
	assert.Equal(t, 2, second.Skipped)
	assert.Len(t, env.fake.CallsOf("put"), 2)

	forced, err := env.orch.Publish(context.Background(), env.spec(t, "src/a/"), PublishOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, forced.Updated)

	_, err = os.Stat(env.reg.Path())
	assert.NoError(t, err, "registry persisted")
}

func TestPublishClassifiesContent(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)

	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	small := append(append([]byte(nil), png...), 0, 0, 0)
	large := append(append([]byte(nil), png...), make([]byte, 32)...)

	env.write(t, home+"/src/doc/readme.txt", []byte("hello"), t0)
	env.write(t, home+"/src/doc/settings.json", []byte(`{"a":true}`), t0)
	env.write(t, home+"/src/img/icon.png", small, t0)
	env.write(t, home+"/src/img/banner.png", large, t0)

	s, err := env.orch.Publish(context.Background(), env.spec(t, "."), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Found)
	assert.Equal(t, 4, s.Created)

	text, _ := env.fake.Property("doc/readme")
	assert.Equal(t, model.TypeText, text.Type)
	assert.Equal(t, "hello", text.Value)

	js, _ := env.fake.Property("doc/settings")
	assert.Equal(t, model.TypeJSON, js.Type)

	icon, _ := env.fake.Property("img/icon")
	assert.Equal(t, model.TypeBinary, icon.Type)
	assert.Equal(t, base64.StdEncoding.EncodeToString(small), icon.Value)

	banner, _ := env.fake.Property("img/banner")
	assert.Equal(t, model.TypeAttachment, banner.Type)
	assert.Len(t, env.fake.Chunks("img/banner", "banner.png"), 5)
}

func TestPublishSkipsDotfiles(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.write(t, home+"/src/.git/config", []byte("x"), t0)
	env.write(t, home+"/src/a/.hidden", []byte("x"), t0)
	env.write(t, home+"/src/a/shown.txt", []byte("x"), t0)

	files, err := env.orch.Enumerate(env.spec(t, "."))
	require.NoError(t, err)
	assert.Equal(t, []string{home + "/src/a/shown.txt"}, files)
}

func TestPublishPatternOnlyMatchingFiles(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.write(t, home+"/src/global/app/one/pipeline/p.json", []byte(`{}`), t0)
	env.write(t, home+"/src/global/app/two/pipeline/q.json", []byte(`{}`), t0)
	env.write(t, home+"/src/global/app/two/config/c.json", []byte(`{}`), t0)

	s, err := env.orch.Publish(context.Background(), env.spec(t, "src/global/app/*/pipeline/*"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Found)

	_, ok := env.fake.Property("global/app/two/config/c")
	assert.False(t, ok)
}

func TestPublishNormalizesAppConfigName(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	path := home + "/src/global/app/Billing/config/app.json"
	env.write(t, path, []byte(`{"name": "Billing", "inner": {"name": "Keep"}}`), t0)

	_, err := env.orch.Publish(context.Background(), env.spec(t, path), PublishOptions{})
	require.NoError(t, err)

	assert.Equal(t, `{"name": "billing", "inner": {"name": "Keep"}}`, env.read(t, path))

	p, ok := env.fake.Property("global/app/Billing/config/app")
	require.True(t, ok)
	assert.Contains(t, p.Value, `"billing"`)
}

func TestLowerName(t *testing.T) {
	out, changed := lowerName([]byte(`{"id":1,"name":"MiXed"}`))
	assert.True(t, changed)
	assert.Equal(t, `{"id":1,"name":"mixed"}`, string(out))

	_, changed = lowerName([]byte(`{"name":"lower"}`))
	assert.False(t, changed)

	_, changed = lowerName([]byte(`{"name":42}`))
	assert.False(t, changed)

	_, changed = lowerName([]byte(`not json`))
	assert.False(t, changed)
}

func TestPublishAbortLeavesRegistryUnsaved(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.write(t, home+"/src/a.txt", []byte("a"), t0)
	env.write(t, home+"/src/b.txt", []byte("b"), t0)
	env.write(t, home+"/src/c.txt", []byte("c"), t0)

	down := &remote.UnavailableError{Op: "put", Err: errors.New("connection refused")}
	env.fake.Fail = func(op, key string) error {
		if op == "put" && key == "b" {
			return down
		}
		return nil
	}

	s, err := env.orch.Publish(context.Background(), env.spec(t, "."), PublishOptions{})
	require.ErrorIs(t, err, down)
	assert.Equal(t, 1, s.Created)
	assert.Equal(t, 1, s.Failed)

	_, statErr := os.Stat(env.reg.Path())
	assert.True(t, os.IsNotExist(statErr))

	last := env.recorder.results[len(env.recorder.results)-1]
	assert.Equal(t, home+"/src/b.txt", last.LocalPath)
	assert.Error(t, last.Err)
}

func TestGetNoAllSkipsRemainingConflicts(t *testing.T) {
	prompter := &scriptedPrompter{answers: []int{3}} // no-all
	env := newTestEnv(t, model.StrategyAsk, prompter)

	remoteTime := t0.Add(time.Hour).UnixMilli()
	for _, k := range []string{"a", "b", "c", "d"} {
		env.fake.SetProperty(model.Property{Key: "cfg/" + k, Type: model.TypeJSON, Value: `{"remote":true}`, Created: 1, Updated: remoteTime})
	}
	for _, k := range []string{"a", "b", "c"} {
		env.write(t, home+"/src/cfg/"+k+".json", []byte(`{"local":true}`), t0)
	}

	s, err := env.orch.Get(context.Background(), env.spec(t, "src/cfg/"), GetOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, prompter.asked)
	assert.Equal(t, 4, s.Found)
	assert.Equal(t, 3, s.Conflicts)
	assert.Equal(t, 3, s.Skipped)
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, model.ChoiceNoAll, s.Remembered)

	assert.Equal(t, `{"local":true}`, env.read(t, home+"/src/cfg/a.json"))
	assert.Equal(t, `{"remote":true}`, env.read(t, home+"/src/cfg/d.json"))
}

func TestGetCancelStopsEnumeration(t *testing.T) {
	prompter := &scriptedPrompter{answers: []int{4}} // cancel
	env := newTestEnv(t, model.StrategyAsk, prompter)

	for _, k := range []string{"a", "b"} {
		env.fake.SetProperty(model.Property{Key: k, Type: model.TypeText, Value: "remote", Created: t0.Add(time.Hour).UnixMilli()})
	}
	env.write(t, home+"/src/a.txt", []byte("local"), t0)

	s, err := env.orch.Get(context.Background(), env.spec(t, "."), GetOptions{})
	require.NoError(t, err)
	assert.True(t, s.Cancelled)
	assert.Equal(t, 0, s.Downloaded)

	exists, err := afero.Exists(env.fs, home+"/src/b.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetThenPublishSkips(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	updated := int64(1_700_000_123_456)
	env.fake.SetProperty(model.Property{Key: "a/b", Type: model.TypeJSON, Value: `{"v":1}`, Created: 1, Updated: updated})
	env.fake.SetProperty(model.Property{Key: "a/bin", Type: model.TypeBinary, Value: base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), Created: updated})

	s, err := env.orch.Get(context.Background(), env.spec(t, "src/a/"), GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Downloaded)

	info, err := env.fs.Stat(home + "/src/a/b.json")
	require.NoError(t, err)
	assert.Equal(t, updated/1000, info.ModTime().Unix())
	assert.Equal(t, string([]byte{1, 2, 3}), env.read(t, home+"/src/a/bin"))

	again, err := env.orch.Get(context.Background(), env.spec(t, "src/a/"), GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
	assert.Equal(t, 0, again.Conflicts)

	pub, err := env.orch.Publish(context.Background(), env.spec(t, "src/a/"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, pub.Published())
}

func TestGetPrefersExistingExtension(t *testing.T) {
	env := newTestEnv(t, model.StrategyOverwrite, nil)
	env.fake.SetProperty(model.Property{Key: "page", Type: model.TypeText, Value: "<p>remote</p>", Created: t0.Add(time.Hour).UnixMilli()})
	env.write(t, home+"/src/page.html", []byte("<p>local</p>"), t0)
	env.write(t, home+"/src/page.conflict_20260101_000000.html", []byte("old"), t0)

	s, err := env.orch.Get(context.Background(), env.spec(t, "."), GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Conflicts)
	assert.Equal(t, "<p>remote</p>", env.read(t, home+"/src/page.html"))
}

func TestGetAttachment(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.fake.SetProperty(model.Property{Key: "docs/manual", Type: model.TypeAttachment, Created: 1, Updated: t0.UnixMilli()})
	env.fake.SetAttachment("docs/manual", "manual.pdf", "", []byte("%PDF-1.4 attachment body"), 8)

	s, err := env.orch.Get(context.Background(), env.spec(t, "src/docs/"), GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, "%PDF-1.4 attachment body", env.read(t, home+"/src/docs/manual.pdf"))

	seconds, ok := env.reg.Get(home + "/src/docs/manual.pdf")
	require.True(t, ok)
	assert.Equal(t, t0.Unix(), seconds)
}

func TestGetCountsIncompleteAttachment(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.fake.SetProperty(model.Property{Key: "docs/manual", Type: model.TypeAttachment, Created: 1, Updated: t0.UnixMilli()})
	env.fake.SetAttachment("docs/manual", "manual.pdf", "", []byte("%PDF-1.4 attachment body"), 8)
	env.fake.TruncateChunks("docs/manual", "manual.pdf", 2)

	s, err := env.orch.Get(context.Background(), env.spec(t, "src/docs/"), GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Downloaded)
	assert.Equal(t, 1, s.Partial)
	assert.Contains(t, s.String(), "partial 1")
	assert.Equal(t, "%PDF-1.4 attachm", env.read(t, home+"/src/docs/manual.pdf"))

	last := env.recorder.results[len(env.recorder.results)-1]
	assert.Equal(t, model.ActionDownload, last.Action)
	assert.ErrorContains(t, last.Err, "received 2 of 3 chunks")

	_, ok := env.reg.Get(home + "/src/docs/manual.pdf")
	assert.True(t, ok)
}

func TestDeleteDirectory(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.write(t, home+"/src/a/x.txt", []byte("x"), t0)
	env.write(t, home+"/src/a/y/z.txt", []byte("z"), t0)
	env.write(t, home+"/src/ab.txt", []byte("ab"), t0)

	_, err := env.orch.Publish(context.Background(), env.spec(t, "."), PublishOptions{})
	require.NoError(t, err)

	s, err := env.orch.Delete(context.Background(), env.spec(t, "src/a/"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Deleted)

	deletes := env.fake.CallsOf("delete")
	require.Len(t, deletes, 1)
	assert.Equal(t, "a/**", deletes[0].Key)

	_, ok := env.fake.Property("a/x")
	assert.False(t, ok)
	_, ok = env.fake.Property("ab")
	assert.True(t, ok)

	assert.Equal(t, 1, env.reg.Len())
	_, ok = env.reg.Get(home + "/src/ab.txt")
	assert.True(t, ok)
}

func TestDeleteSingleFileAndPattern(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.write(t, home+"/src/p/one.json", []byte(`{}`), t0)
	env.write(t, home+"/src/p/two.json", []byte(`{}`), t0)
	env.write(t, home+"/src/q.txt", []byte("q"), t0)

	_, err := env.orch.Publish(context.Background(), env.spec(t, "."), PublishOptions{})
	require.NoError(t, err)

	s, err := env.orch.Delete(context.Background(), env.spec(t, "src/q.txt"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Deleted)
	_, ok := env.reg.Get(home + "/src/q.txt")
	assert.False(t, ok)

	s, err = env.orch.Delete(context.Background(), env.spec(t, "src/p/*"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Deleted)
	assert.Equal(t, 0, env.reg.Len())
}

func TestPublishAndDeleteNamesWithGlobCharacters(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.write(t, home+"/src/a/report[1].txt", []byte("r"), t0)
	env.write(t, home+"/src/a/report1.txt", []byte("1"), t0)
	env.write(t, home+"/src/a/b{c}.txt", []byte("b"), t0)
	env.write(t, home+"/src/v[2]/one.json", []byte(`{}`), t0)
	env.write(t, home+"/src/v2/one.json", []byte(`{}`), t0)

	s, err := env.orch.Publish(context.Background(), env.spec(t, "src/a/report[1].txt"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Found)
	assert.Equal(t, 1, s.Created)
	_, ok := env.fake.Property("a/report[1]")
	assert.True(t, ok)
	_, ok = env.fake.Property("a/report1")
	assert.False(t, ok)

	s, err = env.orch.Publish(context.Background(), env.spec(t, "src/a/b{c}.txt"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Created)

	s, err = env.orch.Publish(context.Background(), env.spec(t, "src/v[2]/*"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Found)
	_, ok = env.fake.Property("v[2]/one")
	assert.True(t, ok)

	s, err = env.orch.Publish(context.Background(), env.spec(t, "src/v2/"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Created)

	s, err = env.orch.Delete(context.Background(), env.spec(t, "src/a/report[1].txt"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Deleted)
	_, ok = env.fake.Property("a/report[1]")
	assert.False(t, ok)
	_, ok = env.reg.Get(home + "/src/a/report[1].txt")
	assert.False(t, ok)

	s, err = env.orch.Delete(context.Background(), env.spec(t, "src/v[2]/*"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Deleted)
	_, ok = env.fake.Property("v[2]/one")
	assert.False(t, ok)
	_, ok = env.fake.Property("v2/one")
	assert.True(t, ok)
	_, ok = env.reg.Get(home + "/src/v2/one.json")
	assert.True(t, ok)

	_, ok = env.fake.Property("a/b{c}")
	assert.True(t, ok)
}

func TestImportUsesBulkAndIgnoresRegistry(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		env.write(t, home+"/src/bulk/"+name+".txt", []byte(name), t0)
	}
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	env.write(t, home+"/src/bulk/logo.png", append(png, make([]byte, 24)...), t0)

	s, err := env.orch.Import(context.Background(), env.spec(t, "src/bulk/"), ImportOptions{BatchSize: 2, Sleep: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 6, s.Created)

	logo, _ := env.fake.Property("bulk/logo")
	assert.Equal(t, model.TypeAttachment, logo.Type)
	assert.Len(t, env.fake.Chunks("bulk/logo", "logo.png"), 4)

	require.Len(t, env.fake.CallsOf("put"), 6)
	require.Len(t, env.fake.CallsOf("put_attachment"), 1)
	require.Len(t, env.fake.CallsOf("put_chunk"), 4)
	require.Len(t, env.fake.CallsOf("put_checksum"), 1)
	for _, op := range []string{"put", "put_attachment", "put_chunk", "put_checksum"} {
		for _, c := range env.fake.CallsOf(op) {
			assert.True(t, c.Bulk, "%s %s", op, c.Key)
		}
	}
	assert.Equal(t, 0, env.reg.Len())
}

func TestImportHonoursCancellation(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	for _, name := range []string{"a", "b", "c"} {
		env.write(t, home+"/src/"+name+".txt", []byte(name), t0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	env.fake.Fail = func(op, _ string) error {
		if op == "put" {
			cancel()
		}
		return nil
	}

	s, err := env.orch.Import(ctx, env.spec(t, "."), ImportOptions{BatchSize: 1, Sleep: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.Created)
}

func TestBatch(t *testing.T) {
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, batch([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a", "b", "c"}}, batch([]string{"a", "b", "c"}, 0))
	assert.Empty(t, batch(nil, 2))
}

func TestPushFileAndDeleteKey(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.write(t, home+"/src/w/file.txt", []byte("v1"), t0)

	action, err := env.orch.PushFile(context.Background(), home+"/src/w/file.txt", "w/file")
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreate, action)

	action, err = env.orch.PushFile(context.Background(), home+"/src/w/file.txt", "w/file")
	require.NoError(t, err)
	assert.Equal(t, model.ActionSkip, action)

	require.NoError(t, env.orch.DeleteKey(context.Background(), "w", true, home+"/src/w"))
	assert.Equal(t, "w/**", env.fake.CallsOf("delete")[0].Key)
	assert.Equal(t, 0, env.reg.Len())
}

func TestPushFileFailureKeepsFileDirty(t *testing.T) {
	env := newTestEnv(t, model.StrategyAsk, nil)
	env.write(t, home+"/src/f.txt", []byte("v1"), t0)

	env.fake.Fail = func(string, string) error {
		return &remote.UnavailableError{Op: "put", Err: errors.New("down")}
	}
	_, err := env.orch.PushFile(context.Background(), home+"/src/f.txt", "f")
	require.Error(t, err)
	assert.True(t, remote.IsTransient(err))

	_, ok := env.reg.Get(home + "/src/f.txt")
	assert.False(t, ok)
}
