// Package journal archives the change set of every committed unit of work.
//
// A Journal encodes change sets with msgpack and writes each one as an
// object of a Store. It is installed as a commit hook:
//
//	store, err := journal.OpenS3(ctx, journal.S3Config{Bucket: "audit"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	j := journal.New(store, journal.WithPrefix("shop/"))
//	work := uow.New(storage, uow.OnCommit(j.Hook()))
//
// Objects are keyed by commit time and a sequence number, so listing a
// prefix returns commits in order. Read reverses Write.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syssam/tether/uow"
)

// Store persists encoded change sets.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Journal writes change sets to a Store.
type Journal struct {
	store  Store
	prefix string
	log    *slog.Logger
	now    func() time.Time
	seq    atomic.Uint64
}

// Option configures a Journal.
type Option func(*Journal)

// WithPrefix sets the key prefix of written objects.
func WithPrefix(prefix string) Option {
	return func(j *Journal) { j.prefix = prefix }
}

// WithLogger sets the logger reporting failed writes of the commit hook.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.log = l }
}

// New returns a journal writing to store.
func New(store Store, opts ...Option) *Journal {
	j := &Journal{store: store, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Write encodes cs and stores it under a new key, which is returned.
func (j *Journal) Write(ctx context.Context, cs *uow.ChangeSet) (string, error) {
	data, err := cs.Encode()
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s%s-%06d.msgpack", j.prefix, j.now().UTC().Format("20060102T150405.000000000Z"), j.seq.Add(1))
	if err := j.store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("journal: put %s: %w", key, err)
	}
	return key, nil
}

// Hook returns a commit hook writing every change set. The commit has
// already succeeded when the hook runs, so failures are only logged.
func (j *Journal) Hook() uow.CommitHook {
	return func(ctx context.Context, cs *uow.ChangeSet) {
		key, err := j.Write(ctx, cs)
		if err != nil {
			j.log.ErrorContext(ctx, "journal write failed", "changes", cs.Len(), "error", err)
			return
		}
		j.log.DebugContext(ctx, "journal written", "key", key, "changes", cs.Len(), "tables", cs.Tables())
	}
}

// Read decodes an object written by Write.
func Read(data []byte) (*uow.ChangeSet, error) {
	return uow.DecodeChangeSet(data)
}
