package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"
)

// ErrCorruptEntry is returned when stored bytes do not decode to an entry for
// the requested fingerprint.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Entry is the stored form of one cached result.
type Entry struct {
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
	WrittenAt   time.Time       `json:"written_at"`
}

// Codec turns entries into stored bytes and back.
type Codec interface {
	// Encode writes the entry to the writer.
	Encode(w io.Writer, e Entry) error
	// Decode reads one entry from the reader.
	Decode(r io.Reader) (Entry, error)
}

// LZ4JSONCodec stores entries as JSON inside an lz4 frame.
type LZ4JSONCodec struct{}

// Encode implements Codec.
func (LZ4JSONCodec) Encode(w io.Writer, e Entry) error {
	zw := lz4.NewWriter(w)

	err := json.NewEncoder(zw).Encode(e)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	err = zw.Close()
	if err != nil {
		return fmt.Errorf("lz4 close: %w", err)
	}

	return nil
}

// Decode implements Codec.
func (LZ4JSONCodec) Decode(r io.Reader) (Entry, error) {
	var decoded Entry

	err := json.NewDecoder(lz4.NewReader(r)).Decode(&decoded)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}

	return decoded, nil
}

func encodeEntry(codec Codec, e Entry) ([]byte, error) {
	var buf bytes.Buffer

	err := codec.Encode(&buf, e)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeEntry(codec Codec, fingerprint string, data []byte) (Entry, error) {
	decoded, err := codec.Decode(bytes.NewReader(data))
	if err != nil {
		return Entry{}, err
	}

	if decoded.Fingerprint != fingerprint {
		return Entry{}, fmt.Errorf("%w: stored under %s but carries %s", ErrCorruptEntry, fingerprint, decoded.Fingerprint)
	}

	return decoded, nil
}
