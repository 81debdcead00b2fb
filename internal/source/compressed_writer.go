package source

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
)

// EncodeFrame compresses payload into one frame of this source's
// container format. Exposed for tests and for any future write-side
// tooling; the reader never calls it.
func EncodeFrame(payload []byte) ([]byte, error) {
	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}

	hdr := make([]byte, frameHeaderLen)
	copy(hdr[:4], frameMagic[:])
	binary.BigEndian.PutUint64(hdr[4:12], uint64(len(payload)))
	binary.BigEndian.PutUint64(hdr[12:20], uint64(compressed.Len()))

	out := make([]byte, 0, len(hdr)+compressed.Len())
	out = append(out, hdr...)
	out = append(out, compressed.Bytes()...)
	return out, nil
}
