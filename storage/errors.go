package storage

import "github.com/localfirst/ldb/pkg/errors"

func notFound(tree Tree, key []byte) error {
	return errors.New(errors.NotFound, "no value for key %x in tree %q", key, tree)
}

func ioErr(err error, format string, args ...interface{}) error {
	return errors.Wrap(errors.StorageIo, err, format, args...)
}
