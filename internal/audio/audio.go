// Package audio caches synthesized speech for question sentences and
// chat replies. Every sentence maps to a stable hash; the MP3 for a
// hash is rendered once, written to the cache directory, and recorded
// in the store so restarts reuse it.
package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"lexvoss/internal/store"
	"lexvoss/pkg/provider/tts"
)

// SentenceHash returns the cache key for a sentence: the first 16 hex
// characters of its SHA-256 digest.
func SentenceHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

var (
	boldRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe    = regexp.MustCompile(`\*(.+?)\*`)
	inlineCode  = regexp.MustCompile("`([^`]*)`")
	headingRe   = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	blankLineRe = regexp.MustCompile(`\n{2,}`)
)

// StripMarkdown flattens markdown chat output into plain prose suitable
// for speech synthesis.
func StripMarkdown(text string) string {
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = inlineCode.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	text = blankLineRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}

// Narrator renders sentences to MP3 files under a cache directory.
type Narrator struct {
	store    store.AudioCacheStore
	provider tts.Provider
	cacheDir string
	log      *slog.Logger
}

// NewNarrator builds a Narrator. provider may be nil when no TTS
// backend is configured; GetOrCreate then fails with ErrNoProvider.
func NewNarrator(st store.AudioCacheStore, provider tts.Provider, cacheDir string, log *slog.Logger) *Narrator {
	if log == nil {
		log = slog.Default()
	}
	return &Narrator{store: st, provider: provider, cacheDir: cacheDir, log: log}
}

// ErrNoProvider is returned when synthesis is requested without a
// configured TTS backend.
var ErrNoProvider = errors.New("audio: no tts provider configured")

// Enabled reports whether a TTS backend is configured.
func (n *Narrator) Enabled() bool {
	return n.provider != nil
}

// CachedPath returns the on-disk MP3 path for a hash, or ErrNotFound
// when the hash has never been rendered or its file is gone.
func (n *Narrator) CachedPath(ctx context.Context, hash string) (string, error) {
	path, err := n.store.AudioCachePath(ctx, hash)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", store.ErrNotFound
	}
	return path, nil
}

// GetOrCreate returns the MP3 path for a sentence, synthesizing and
// caching it on a miss.
func (n *Narrator) GetOrCreate(ctx context.Context, text string) (string, error) {
	hash := SentenceHash(text)

	path, err := n.store.AudioCachePath(ctx, hash)
	switch {
	case err == nil:
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
		// Stale cache row: the file was removed out of band.
		if delErr := n.store.DeleteAudioCache(ctx, hash); delErr != nil {
			n.log.Warn("dropping stale audio cache entry failed", "hash", hash, "error", delErr)
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return "", fmt.Errorf("audio: cache lookup: %w", err)
	}

	if n.provider == nil {
		return "", ErrNoProvider
	}

	data, err := n.provider.Synthesize(ctx, text)
	if err != nil {
		return "", fmt.Errorf("audio: synthesize: %w", err)
	}

	if err := os.MkdirAll(n.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("audio: create cache dir: %w", err)
	}
	path = filepath.Join(n.cacheDir, hash+".mp3")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("audio: write cache file: %w", err)
	}
	if err := n.store.SetAudioCache(ctx, hash, path, n.provider.Name()); err != nil {
		return "", fmt.Errorf("audio: record cache entry: %w", err)
	}
	n.log.Info("audio rendered", "hash", hash, "bytes", len(data), "backend", n.provider.Name())
	return path, nil
}

// Warm renders every sentence in texts that is not already cached. Used
// after question generation so session playback never waits on the
// backend. Errors are logged, not returned.
func (n *Narrator) Warm(ctx context.Context, texts []string) {
	if n.provider == nil {
		return
	}
	for _, text := range texts {
		if text == "" {
			continue
		}
		if _, err := n.GetOrCreate(ctx, text); err != nil {
			n.log.Warn("audio warmup failed", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
