package lode

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/framelog/iox"
	"github.com/pithecene-io/framelog/types"
)

// ManifestVersion is the msgpack manifest schema version.
const ManifestVersion = 1

// Config configures an Archiver.
type Config struct {
	// Dataset is the session dataset id (default "framelog").
	Dataset string
	// Location is a URL-ish prefix used to build storage paths reported to
	// adapters (e.g. "file:///var/lib/framelog", "s3://bucket/prefix").
	Location string
}

// Manifest describes an archived recording. Stored as msgpack beside the
// recording so the archive can be browsed without the dataset.
type Manifest struct {
	Version         int    `msgpack:"version"`
	SessionID       string `msgpack:"session_id"`
	Filename        string `msgpack:"filename"`
	ObjectPath      string `msgpack:"object_path"`
	Outcome         string `msgpack:"outcome"`
	Frames          int64  `msgpack:"frames"`
	SizeBytes       int64  `msgpack:"size_bytes"`
	SHA256          string `msgpack:"sha256"`
	StoreFormat     int    `msgpack:"store_format"`
	FramelogVersion string `msgpack:"framelog_version"`
	StartedAtMs     int64  `msgpack:"started_at_ms"`
	CompletedAtMs   int64  `msgpack:"completed_at_ms"`
}

// ArchiveResult reports where a session landed.
type ArchiveResult struct {
	// ObjectPath is the store-relative path of the recording, empty when no file was archived.
	ObjectPath string
	// StoragePath is Location joined with ObjectPath.
	StoragePath string
	// SizeBytes is the archived recording size.
	SizeBytes int64
	// SHA256 is the hex digest of the archived recording.
	SHA256 string
}

// Archiver copies finished recordings into a lode Store and records every
// finished session as a row in a lode Dataset.
// Safe for concurrent use.
type Archiver struct {
	cfg     Config
	dataset lode.Dataset

	factory   lode.StoreFactory
	storeOnce sync.Once
	store     lode.Store
	storeErr  error

	mu sync.Mutex // serializes dataset writes
}

// NewArchiver creates an archiver over stores produced by factory.
// Use lode.NewMemoryFactory() for testing.
func NewArchiver(cfg Config, factory lode.StoreFactory) (*Archiver, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := NewSessionDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, wrapError(err, "init", cfg.Dataset)
	}
	return &Archiver{cfg: cfg, dataset: ds, factory: factory}, nil
}

// NewFSArchiver creates an archiver rooted at a local directory.
func NewFSArchiver(cfg Config, root string) (*Archiver, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrapError(err, "init", root)
	}
	if cfg.Location == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			abs = root
		}
		cfg.Location = "file://" + abs
	}
	return NewArchiver(cfg, lode.NewFSFactory(root))
}

// Dataset returns the session dataset.
func (a *Archiver) Dataset() lode.Dataset {
	return a.dataset
}

// getOrCreateStore lazily initializes the Store from the factory.
func (a *Archiver) getOrCreateStore() (lode.Store, error) {
	a.storeOnce.Do(func() {
		a.store, a.storeErr = a.factory()
	})
	return a.store, a.storeErr
}

// Archive records a finished session. When localPath names an existing
// recording it is copied into the store first, followed by its manifest.
// Playback sessions and recordings whose file was never created only get
// a dataset row.
func (a *Archiver) Archive(ctx context.Context, result *types.SessionResult, localPath string) (*ArchiveResult, error) {
	out := &ArchiveResult{}

	if result.Kind == types.SessionRecording && localPath != "" {
		if _, err := os.Stat(localPath); err == nil {
			if err := a.putRecording(ctx, result, localPath, out); err != nil {
				return nil, err
			}
		}
	}

	rec := newSessionRecord(result, out.ObjectPath, out.SizeBytes)

	a.mu.Lock()
	_, err := a.dataset.Write(ctx, []any{rec.toMap()}, lode.Metadata{})
	a.mu.Unlock()
	if err != nil {
		return nil, wrapError(err, "put", a.cfg.Dataset)
	}
	return out, nil
}

func (a *Archiver) putRecording(ctx context.Context, result *types.SessionResult, localPath string, out *ArchiveResult) error {
	store, err := a.getOrCreateStore()
	if err != nil {
		return wrapError(err, "init", a.cfg.Location)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return wrapError(err, "open", localPath)
	}
	defer iox.DiscardClose(f)

	objectPath := objectPathFor(result)
	hasher := sha256.New()
	counter := &countingReader{r: io.TeeReader(f, hasher)}
	if err := store.Put(ctx, objectPath, counter); err != nil {
		return wrapError(err, "put", objectPath)
	}

	out.ObjectPath = objectPath
	out.StoragePath = a.storagePath(objectPath)
	out.SizeBytes = counter.n
	out.SHA256 = hex.EncodeToString(hasher.Sum(nil))

	m := Manifest{
		Version:         ManifestVersion,
		SessionID:       result.SessionID,
		Filename:        result.Filename,
		ObjectPath:      objectPath,
		Outcome:         string(result.Outcome),
		Frames:          result.Frames,
		SizeBytes:       out.SizeBytes,
		SHA256:          out.SHA256,
		StoreFormat:     types.StoreFormatVersion,
		FramelogVersion: types.Version,
		StartedAtMs:     result.StartedAt.UnixMilli(),
		CompletedAtMs:   result.CompletedAt.UnixMilli(),
	}
	body, err := msgpack.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	mpath := manifestPath(objectPath)
	if err := store.Put(ctx, mpath, bytes.NewReader(body)); err != nil {
		return wrapError(err, "put", mpath)
	}
	return nil
}

// Manifest reads the manifest stored beside objectPath.
func (a *Archiver) Manifest(ctx context.Context, objectPath string) (*Manifest, error) {
	store, err := a.getOrCreateStore()
	if err != nil {
		return nil, wrapError(err, "init", a.cfg.Location)
	}
	mpath := manifestPath(objectPath)
	rc, err := store.Get(ctx, mpath)
	if err != nil {
		return nil, wrapError(err, "get", mpath)
	}
	defer iox.DiscardClose(rc)

	var m Manifest
	if err := msgpack.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", mpath, err)
	}
	return &m, nil
}

// Fetch copies the archived recording at objectPath to w and returns the
// number of bytes copied.
func (a *Archiver) Fetch(ctx context.Context, objectPath string, w io.Writer) (int64, error) {
	store, err := a.getOrCreateStore()
	if err != nil {
		return 0, wrapError(err, "init", a.cfg.Location)
	}
	rc, err := store.Get(ctx, objectPath)
	if err != nil {
		return 0, wrapError(err, "get", objectPath)
	}
	defer iox.DiscardClose(rc)

	n, err := io.Copy(w, rc)
	if err != nil {
		return n, wrapError(err, "get", objectPath)
	}
	return n, nil
}

// Objects lists archived recording paths for day (all days when empty).
func (a *Archiver) Objects(ctx context.Context, day string) ([]string, error) {
	store, err := a.getOrCreateStore()
	if err != nil {
		return nil, wrapError(err, "init", a.cfg.Location)
	}
	prefix := "recordings/"
	if day != "" {
		prefix += "day=" + day + "/"
	}
	paths, err := store.List(ctx, prefix)
	if err != nil {
		return nil, wrapError(err, "list", prefix)
	}
	out := paths[:0]
	for _, p := range paths {
		if strings.HasSuffix(p, ".bin") {
			out = append(out, p)
		}
	}
	return out, nil
}

// Close releases archiver resources.
func (a *Archiver) Close() error {
	return nil
}

func (a *Archiver) storagePath(objectPath string) string {
	if a.cfg.Location == "" {
		return objectPath
	}
	return strings.TrimSuffix(a.cfg.Location, "/") + "/" + objectPath
}

// objectPathFor names the archived copy. The start time keeps repeated
// recordings to the same filename within one session distinct.
func objectPathFor(result *types.SessionResult) string {
	base := strings.TrimSuffix(filepath.Base(result.Filename), filepath.Ext(result.Filename))
	base = sanitizeName(base)
	if base == "" {
		base = "recording"
	}
	return fmt.Sprintf("%s/%s-%d.bin", objectDir(DeriveDay(result.StartedAt), result.SessionID), base, result.StartedAt.UnixMilli())
}

func manifestPath(objectPath string) string {
	return strings.TrimSuffix(objectPath, ".bin") + ".manifest.msgpack"
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
