package export

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/star/orbstate/internal/dataset"
)

// snapshotVersion changes whenever the gob layout of dataset.Dataset does.
const snapshotVersion = 1

// ErrSnapshotVersion is returned for snapshots written by another layout.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

type snapshotHeader struct {
	Magic   string
	Version int
}

const snapshotMagic = "orbstate-dataset"

// WriteSnapshot writes ds in a binary form that ReadSnapshot restores.
func WriteSnapshot(w io.Writer, ds *dataset.Dataset) error {
	bw := bufio.NewWriter(w)
	enc := gob.NewEncoder(bw)
	if err := enc.Encode(snapshotHeader{Magic: snapshotMagic, Version: snapshotVersion}); err != nil {
		return fmt.Errorf("encoding snapshot header: %w", err)
	}
	if err := enc.Encode(ds); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return bw.Flush()
}

// ReadSnapshot decodes a dataset written by WriteSnapshot.
func ReadSnapshot(r io.Reader) (*dataset.Dataset, error) {
	dec := gob.NewDecoder(bufio.NewReader(r))
	var h snapshotHeader
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding snapshot header: %w", err)
	}
	if h.Magic != snapshotMagic {
		return nil, fmt.Errorf("not a dataset snapshot (magic %q)", h.Magic)
	}
	if h.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotVersion, h.Version)
	}
	var ds dataset.Dataset
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &ds, nil
}
