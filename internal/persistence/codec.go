package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/smallbiznis/storeledger/internal/config"
	"github.com/smallbiznis/storeledger/internal/ledger/domain"
)

// SchemaVersion tags the blob layout. Bump it when the snapshot shape changes.
const SchemaVersion = 2

var (
	blobMagic = []byte("SLZ1")

	ErrCorruptCache = errors.New("cache_blob_corrupt")
)

type blob struct {
	SchemaVersion int              `json:"schema_version"`
	SavedAt       time.Time        `json:"saved_at"`
	Settings      *config.Settings `json:"settings,omitempty"`
	Data          domain.Snapshot  `json:"data"`
}

func encodeBlob(b blob) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode cache blob: %w", err)
	}
	compressed := snappy.Encode(nil, raw)
	out := make([]byte, 0, len(blobMagic)+len(compressed))
	out = append(out, blobMagic...)
	return append(out, compressed...), nil
}

// decodeBlob reads both the compressed format and the plain JSON written by
// older versions.
func decodeBlob(data []byte) (blob, error) {
	var raw []byte
	switch {
	case bytes.HasPrefix(data, blobMagic):
		decoded, err := snappy.Decode(nil, data[len(blobMagic):])
		if err != nil {
			return blob{}, fmt.Errorf("%w: %v", ErrCorruptCache, err)
		}
		raw = decoded
	case bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")):
		raw = data
	default:
		return blob{}, ErrCorruptCache
	}

	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		return blob{}, fmt.Errorf("%w: %v", ErrCorruptCache, err)
	}
	return b, nil
}
