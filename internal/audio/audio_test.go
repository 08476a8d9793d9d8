package audio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lexvoss/internal/audio"
	"lexvoss/internal/store"
	storemock "lexvoss/internal/store/mock"
	ttsmock "lexvoss/pkg/provider/tts/mock"
)

func TestSentenceHash(t *testing.T) {
	h := audio.SentenceHash("He ambled along the river.")
	if len(h) != 16 {
		t.Fatalf("hash length = %d, want 16", len(h))
	}
	if h != audio.SentenceHash("He ambled along the river.") {
		t.Error("hash must be stable")
	}
	if h == audio.SentenceHash("He trudged along the river.") {
		t.Error("different sentences must not collide")
	}
}

func TestStripMarkdown(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"**saunter** means to walk slowly", "saunter means to walk slowly"},
		{"that was *almost* right", "that was almost right"},
		{"use `amble` here", "use amble here"},
		{"## Why it fits\nBecause.", "Why it fits Because."},
		{"First.\n\nSecond.", "First. Second."},
		{"  plain already  ", "plain already"},
	}
	for _, tc := range cases {
		if got := audio.StripMarkdown(tc.in); got != tc.want {
			t.Errorf("StripMarkdown(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGetOrCreateMiss(t *testing.T) {
	dir := t.TempDir()
	st := &storemock.Store{}
	tp := &ttsmock.Provider{SynthesizeResult: []byte("mp3"), NameValue: "elevenlabs"}
	n := audio.NewNarrator(st, tp, dir, nil)

	path, err := n.GetOrCreate(context.Background(), "He ambled home.")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	want := filepath.Join(dir, audio.SentenceHash("He ambled home.")+".mp3")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "mp3" {
		t.Errorf("cache file = %q, %v", data, err)
	}
	if got := st.CallCount("SetAudioCache"); got != 1 {
		t.Errorf("SetAudioCache calls = %d", got)
	}
	if len(tp.SynthesizeCalls) != 1 || tp.SynthesizeCalls[0].Text != "He ambled home." {
		t.Errorf("synthesize calls = %+v", tp.SynthesizeCalls)
	}
}

func TestGetOrCreateHit(t *testing.T) {
	dir := t.TempDir()
	cached := filepath.Join(dir, "deadbeef.mp3")
	if err := os.WriteFile(cached, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := &storemock.Store{AudioCachePathResult: cached}
	tp := &ttsmock.Provider{}
	n := audio.NewNarrator(st, tp, dir, nil)

	path, err := n.GetOrCreate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if path != cached {
		t.Errorf("path = %q", path)
	}
	if len(tp.SynthesizeCalls) != 0 {
		t.Error("cache hit must not synthesize")
	}
}

func TestGetOrCreateStaleEntryResynthesizes(t *testing.T) {
	dir := t.TempDir()
	st := &storemock.Store{AudioCachePathResult: filepath.Join(dir, "gone.mp3")}
	tp := &ttsmock.Provider{SynthesizeResult: []byte("fresh")}
	n := audio.NewNarrator(st, tp, dir, nil)

	path, err := n.GetOrCreate(context.Background(), "stale sentence")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got := st.CallCount("DeleteAudioCache"); got != 1 {
		t.Errorf("DeleteAudioCache calls = %d", got)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "fresh" {
		t.Errorf("cache file = %q, %v", data, err)
	}
}

func TestGetOrCreateNoProvider(t *testing.T) {
	n := audio.NewNarrator(&storemock.Store{}, nil, t.TempDir(), nil)
	_, err := n.GetOrCreate(context.Background(), "text")
	if !errors.Is(err, audio.ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestCachedPathMissingFile(t *testing.T) {
	st := &storemock.Store{AudioCachePathResult: "/nonexistent/file.mp3"}
	n := audio.NewNarrator(st, nil, t.TempDir(), nil)
	_, err := n.CachedPath(context.Background(), "abc")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestWarmSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	st := &storemock.Store{}
	calls := 0
	tp := &ttsmock.Provider{SynthesizeFn: func(text string) ([]byte, error) {
		calls++
		if text == "bad" {
			return nil, errors.New("backend down")
		}
		return []byte("ok"), nil
	}}
	n := audio.NewNarrator(st, tp, dir, nil)

	n.Warm(context.Background(), []string{"one", "bad", "", "two"})
	if calls != 3 {
		t.Errorf("synthesize calls = %d, want 3", calls)
	}
}
