// README: Generic mutex-guarded table over one delimited file with atomic rewrites.
package flatfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"taxidispatch/internal/store"
	"taxidispatch/internal/types"
)

// row is one non-blank line of a table file. Lines that fail to decode keep
// ok == false and are written back verbatim on rewrite.
type row[T any] struct {
	raw string
	rec T
	ok  bool
}

type table[T any] struct {
	mu     sync.Mutex
	kind   store.Kind
	path   string
	fields int
	encode func(T) []string
	decode func([]string) (T, error)
	id     func(T) types.ID
	setID  func(T, types.ID)
	check  func(T) error
	log    *zap.Logger
}

func (t *table[T]) ensure() error {
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return &store.StorageError{Op: "create", Path: t.path, Err: err}
	}
	return f.Close()
}

// load reads and decodes every line. The caller must hold t.mu.
func (t *table[T]) load() ([]row[T], error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &store.StorageError{Op: "open", Path: t.path, Err: err}
	}
	defer f.Close()

	var rows []row[T]
	r := bufio.NewReader(f)
	lineNo := 0
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			lineNo++
			line = strings.TrimRight(line, "\r\n")
			if strings.TrimSpace(line) != "" {
				rows = append(rows, t.parse(lineNo, line))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &store.StorageError{Op: "read", Path: t.path, Err: err}
		}
	}
	return rows, nil
}

func (t *table[T]) parse(lineNo int, line string) row[T] {
	parts := strings.Split(line, store.Delimiter)
	if len(parts) != t.fields {
		t.skip(&store.ParseError{
			Kind:   t.kind,
			Line:   lineNo,
			Reason: fmt.Sprintf("expected %d fields, got %d", t.fields, len(parts)),
		})
		return row[T]{raw: line}
	}
	rec, err := t.decode(parts)
	if err != nil {
		t.skip(&store.ParseError{Kind: t.kind, Line: lineNo, Reason: err.Error()})
		return row[T]{raw: line}
	}
	return row[T]{raw: line, rec: rec, ok: true}
}

func (t *table[T]) skip(perr *store.ParseError) {
	t.log.Warn("skipping malformed record", zap.String("file", t.path), zap.Error(perr))
}

func (t *table[T]) all(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.load()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if r.ok {
			out = append(out, r.rec)
		}
	}
	return out, nil
}

func (t *table[T]) get(ctx context.Context, id types.ID) (T, bool, error) {
	var zero T
	recs, err := t.all(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, r := range recs {
		if t.id(r) == id {
			return r, true, nil
		}
	}
	return zero, false, nil
}

// insert appends rec, allocating the next identifier under the table lock
// when rec has none.
func (t *table[T]) insert(ctx context.Context, rec T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.load()
	if err != nil {
		return err
	}
	ids := make([]types.ID, 0, len(rows))
	for _, r := range rows {
		if r.ok {
			ids = append(ids, t.id(r.rec))
		}
	}
	if t.id(rec) == "" {
		t.setID(rec, store.NextID(t.kind, ids))
	} else {
		for _, id := range ids {
			if id == t.id(rec) {
				return fmt.Errorf("%w: %s", store.ErrDuplicateID, id)
			}
		}
	}
	line, err := t.line(rec)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return &store.StorageError{Op: "append", Path: t.path, Err: err}
	}
	unterminated, err := endsWithoutNewline(f)
	if err != nil {
		_ = f.Close()
		return &store.StorageError{Op: "append", Path: t.path, Err: err}
	}
	if unterminated {
		line = "\n" + line
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return &store.StorageError{Op: "append", Path: t.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return &store.StorageError{Op: "sync", Path: t.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &store.StorageError{Op: "close", Path: t.path, Err: err}
	}
	return nil
}

// replace runs fn on the stored record with the given id and rewrites the
// table with the result. Nothing is written when fn fails.
func (t *table[T]) replace(ctx context.Context, id types.ID, fn func(T) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.load()
	if err != nil {
		return zero, err
	}
	idx := -1
	for i, r := range rows {
		if r.ok && t.id(r.rec) == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return zero, fmt.Errorf("%w: %s %s", store.ErrNotFound, t.kind, id)
	}

	next, err := fn(rows[idx].rec)
	if err != nil {
		return zero, err
	}
	if t.id(next) != id {
		return zero, fmt.Errorf("%w: %s id is immutable", store.ErrInvalidField, t.kind)
	}
	line, err := t.line(next)
	if err != nil {
		return zero, err
	}
	rows[idx] = row[T]{raw: line, rec: next, ok: true}

	if err := t.rewrite(rows); err != nil {
		return zero, err
	}
	return next, nil
}

// endsWithoutNewline reports whether a non-empty file's last byte is not '\n'.
func endsWithoutNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

func (t *table[T]) nextID(ctx context.Context) (types.ID, error) {
	recs, err := t.all(ctx)
	if err != nil {
		return "", err
	}
	ids := make([]types.ID, len(recs))
	for i, r := range recs {
		ids[i] = t.id(r)
	}
	return store.NextID(t.kind, ids), nil
}

func (t *table[T]) line(rec T) (string, error) {
	if t.check != nil {
		if err := t.check(rec); err != nil {
			return "", err
		}
	}
	fields := t.encode(rec)
	if err := store.ValidateFields(fields...); err != nil {
		return "", err
	}
	return strings.Join(fields, store.Delimiter), nil
}

// rewrite replaces the table file atomically: write a sibling temp file,
// fsync it, then rename it over the original.
func (t *table[T]) rewrite(rows []row[T]) error {
	tmp, err := os.CreateTemp(filepath.Dir(t.path), filepath.Base(t.path)+".tmp-*")
	if err != nil {
		return &store.StorageError{Op: "rewrite", Path: t.path, Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func(op string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return &store.StorageError{Op: op, Path: t.path, Err: err}
	}

	if err := tmp.Chmod(0o644); err != nil {
		return cleanup("chmod", err)
	}
	w := bufio.NewWriter(tmp)
	for _, r := range rows {
		if _, err := w.WriteString(r.raw + "\n"); err != nil {
			return cleanup("rewrite", err)
		}
	}
	if err := w.Flush(); err != nil {
		return cleanup("rewrite", err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return &store.StorageError{Op: "close", Path: t.path, Err: err}
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		_ = os.Remove(tmpPath)
		return &store.StorageError{Op: "rename", Path: t.path, Err: err}
	}
	return nil
}
