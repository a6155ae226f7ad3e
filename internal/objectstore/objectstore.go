// Package objectstore is the content-addressed on-disk home for tool-call
// outputs too large to store inline in SQL (over 1 KiB). Objects live
// under <root>/objects/<hash> and are referenced from a tool_calls row by
// path, content hash, and size; reads hydrate lazily from disk.
package objectstore

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// indexFile records each newly-written object's ulid alongside its hash, in
// write order. The hash alone is content-addressed and carries no notion of
// "when", so anything that wants write-order (GC, inspection tooling) reads
// this instead of relying on filesystem mtimes.
const indexFile = "objects/.index"

// Store writes and reads content-addressed blobs under a root directory.
type Store struct {
	root string

	mu sync.Mutex
}

// Open ensures root/objects exists and returns a Store rooted there.
func Open(root string) (*Store, error) {
	dir := filepath.Join(root, "objects")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore mkdir: %w", err)
	}
	return &Store{root: root}, nil
}

// Put hashes content, writes it to objects/<hash> if not already present,
// and returns the hash and the path it was written to. A newly-written
// object gets a fresh ULID appended to the generation index; a dedup hit on
// an existing hash does not, since it wasn't a new write.
func (s *Store) Put(content []byte) (hash, path string, err error) {
	sum := sha256.Sum256(content)
	hash = hex.EncodeToString(sum[:])
	path = s.objectPath(hash)

	if _, statErr := os.Stat(path); statErr == nil {
		return hash, path, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return "", "", fmt.Errorf("objectstore write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", "", fmt.Errorf("objectstore rename: %w", err)
	}

	if err := s.appendIndex(ulid.Make(), hash); err != nil {
		return "", "", err
	}
	return hash, path, nil
}

// Get reads back a previously stored blob by its path.
func (s *Store) Get(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("objectstore read %s: %w", path, err)
	}
	return b, nil
}

// GenerationOrder returns every hash recorded in the generation index,
// oldest write first, in the index's append order rather than by
// filesystem mtime (which a restore/rsync can scramble). Entries are not
// re-sorted by their ULIDs.
func (s *Store) GenerationOrder() ([]string, error) {
	f, err := os.Open(filepath.Join(s.root, indexFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore read index: %w", err)
	}
	defer func() { _ = f.Close() }()

	type entry struct {
		id   ulid.ULID
		hash string
	}
	var entries []entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		id, err := ulid.Parse(fields[0])
		if err != nil {
			continue
		}
		entries = append(entries, entry{id: id, hash: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("objectstore scan index: %w", err)
	}

	// ulid.ULID sorts lexicographically the same as chronologically, and
	// appends are already in write order, so no explicit sort is needed
	// beyond trusting append order — kept as a slice rather than a map so
	// that order is the whole point of the return value.
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.hash
	}
	return out, nil
}

func (s *Store) appendIndex(id ulid.ULID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.root, indexFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("objectstore open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "%s %s\n", id.String(), hash); err != nil {
		return fmt.Errorf("objectstore append index: %w", err)
	}
	return nil
}

func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.root, "objects", hash)
}
