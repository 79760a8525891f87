// Package export writes QueryJSON results to object storage as snapshot
// files.
package export

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/errs"
	"github.com/koustreak/rowbridge/internal/filestore"
	"github.com/koustreak/rowbridge/internal/logger"
)

const contentType = "application/json"

// Config controls where snapshots land.
type Config struct {
	Bucket string `yaml:"bucket"`

	// Prefix is joined in front of every key, e.g. "exports/daily".
	Prefix string `yaml:"prefix"`

	// URLTTL > 0 attaches a presigned download URL to each snapshot.
	URLTTL time.Duration `yaml:"url_ttl"`

	// CreateBucket creates Bucket on first use.
	CreateBucket bool `yaml:"create_bucket"`
}

// Querier produces the JSON array a snapshot holds. *bridge.Bridge
// implements it.
type Querier interface {
	QueryJSON(ctx context.Context, desc database.Descriptor, sql string, args ...any) (string, error)
}

// Snapshot describes one uploaded result.
type Snapshot struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	ETag   string `json:"etag"`
	URL    string `json:"url,omitempty"`
}

// Exporter runs queries and stores their JSON output.
type Exporter struct {
	q     Querier
	store filestore.Store
	cfg   Config
	log   *logger.Logger
	now   func() time.Time
}

// New returns an Exporter. log may be nil.
func New(q Querier, store filestore.Store, cfg Config, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{q: q, store: store, cfg: cfg, log: log, now: time.Now}
}

// Export runs sql against desc and uploads the resulting JSON array under
// key. An empty key gets a timestamped unique name.
func (e *Exporter) Export(ctx context.Context, desc database.Descriptor, sql, key string, args ...any) (*Snapshot, error) {
	if e.cfg.Bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "export bucket is not configured")
	}
	key = e.objectKey(key)

	body, err := e.q.QueryJSON(ctx, desc, sql, args...)
	if err != nil {
		return nil, err
	}

	if e.cfg.CreateBucket {
		if err := e.store.EnsureBucket(ctx, e.cfg.Bucket); err != nil {
			return nil, errs.Ensure(err, errs.ErrKindConnectionFailed, "failed to prepare export bucket")
		}
	}

	put, err := e.store.PutObject(ctx, e.cfg.Bucket, key, strings.NewReader(body), int64(len(body)), filestore.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"source": desc.Redacted()},
	})
	if err != nil {
		return nil, errs.Ensure(err, errs.ErrKindConnectionFailed, "failed to upload snapshot")
	}

	// The snapshot reports what the store holds, not what was sent.
	stat, err := e.store.StatObject(ctx, e.cfg.Bucket, key)
	if err != nil {
		return nil, errs.Ensure(err, errs.ErrKindConnectionFailed, "failed to stat uploaded snapshot")
	}
	if stat.Size != int64(len(body)) {
		return nil, errs.New(errs.ErrKindConnectionFailed,
			fmt.Sprintf("stored snapshot %s has %d bytes, uploaded %d", key, stat.Size, len(body)))
	}

	snap := &Snapshot{
		Bucket: e.cfg.Bucket,
		Key:    key,
		Size:   stat.Size,
		ETag:   stat.ETag,
	}
	if snap.ETag == "" {
		snap.ETag = put.ETag
	}
	if e.cfg.URLTTL > 0 {
		snap.URL, err = e.store.PresignGetURL(ctx, e.cfg.Bucket, key, e.cfg.URLTTL)
		if err != nil {
			return nil, errs.Ensure(err, errs.ErrKindConnectionFailed, "failed to presign snapshot URL")
		}
	}

	e.log.InfoWith("snapshot exported", map[string]any{
		"bucket": snap.Bucket,
		"key":    snap.Key,
		"size":   snap.Size,
	})
	return snap, nil
}

func (e *Exporter) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		key = e.now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString() + ".json"
	}
	if e.cfg.Prefix == "" {
		return key
	}
	return path.Join(e.cfg.Prefix, key)
}
