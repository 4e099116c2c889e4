// Package cmd assembles the ldb command-line tool: one document-store peer
// per process, driven by cobra subcommands for document lifecycle, ACL
// administration, schema migration, and gossip.
//
// Grounded on cmd/commands.go's root-command assembly and cmd/run.go's
// flag/param wiring shape, replacing OPA's rego-eval subcommands with this
// system's doc/acl/migrate/sync/keygen operations.
package cmd

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/localfirst/ldb/config"
	"github.com/localfirst/ldb/log"
	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/id"
	"github.com/localfirst/ldb/pkg/keys"
	"github.com/localfirst/ldb/storage"
	"github.com/localfirst/ldb/storage/disk"
)

// ExitError carries a process exit code up through cobra's Run callbacks.
type ExitError struct {
	Exit int
}

func newExitError(exit int) error {
	return &ExitError{Exit: exit}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit %d", e.Exit)
}

func fail(err error) error {
	fmt.Fprintln(os.Stderr, "error:", err)
	return newExitError(1)
}

// loadKeyPair reads the hex-encoded ed25519 seed keygen writes.
func loadKeyPair(path string) (*keys.KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.StorageIo, err, "reading key file %s", path)
	}
	seedBytes, err := hex.DecodeString(string(trimNewline(raw)))
	if err != nil {
		return nil, errors.Wrap(errors.InvalidPath, err, "decoding key file %s", path)
	}
	if len(seedBytes) != 32 {
		return nil, errors.New(errors.InvalidPath, "key file %s: expected a 32-byte seed, got %d bytes", path, len(seedBytes))
	}
	var seed [32]byte
	copy(seed[:], seedBytes)
	return keys.FromSeed(seed), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func parsePeerId(s string) (id.PeerId, error) {
	var p id.PeerId
	raw, err := hex.DecodeString(s)
	if err != nil {
		return p, errors.Wrap(errors.InvalidPath, err, "decoding peer id %s", s)
	}
	if len(raw) != len(p) {
		return p, errors.New(errors.InvalidPath, "peer id %s: expected %d bytes, got %d", s, len(p), len(raw))
	}
	copy(p[:], raw)
	return p, nil
}

func parseDocId(s string) (id.DocId, error) {
	var d id.DocId
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, errors.Wrap(errors.InvalidPath, err, "decoding document id %s", s)
	}
	if len(raw) != len(d) {
		return d, errors.New(errors.InvalidPath, "document id %s: expected %d bytes, got %d", s, len(d), len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

func parseHash(s string) (id.Hash, error) {
	var h id.Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.Wrap(errors.InvalidPath, err, "decoding schema hash %s", s)
	}
	if len(raw) != len(h) {
		return h, errors.New(errors.InvalidPath, "schema hash %s: expected %d bytes, got %d", s, len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// openStore opens a durable badger-backed store at dir.
func openStore(dir string) (storage.Store, error) {
	return disk.Open(disk.Options{Dir: dir})
}

func newLogger(level string) *log.Entry {
	l := log.NewLogger()
	if err := l.SetLevel(level); err != nil {
		l.SetLevel("info")
	}
	return l.WithField("component", "ldb")
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
