/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package artifact compresses, chunks and moves the large artifacts of a
// fold: public params, compression keys and proofs.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/provideplatform/fold/common"
)

// Compress gzips the given bytes at the default compression level
func Compress(b []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w, err := gzip.NewWriterLevel(buf, gzip.DefaultCompression)
	if err != nil {
		return nil, common.Wrap(common.ErrCodec, err, "failed to init gzip writer")
	}

	_, err = w.Write(b)
	if err != nil {
		return nil, common.Wrap(common.ErrCodec, err, "failed to compress %d-byte artifact", len(b))
	}

	err = w.Close()
	if err != nil {
		return nil, common.Wrap(common.ErrCodec, err, "failed to flush compressed artifact")
	}

	return buf.Bytes(), nil
}

// Decompress inflates a gzip stream; corrupt or truncated streams fail
func Decompress(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, common.Wrap(common.ErrCodec, err, "failed to read gzip header")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, common.Wrap(common.ErrCodec, err, "failed to decompress artifact")
	}

	return out, nil
}

// Chunk splits b into exactly n ordered pieces of ceil(len(b)/n) bytes; the
// trailing pieces may be shorter, or empty when n does not divide evenly
func Chunk(b []byte, n int) ([][]byte, error) {
	if n < 1 {
		return nil, common.Wrap(common.ErrMalformedInput, nil, "chunk count must be positive; got %d", n)
	}

	size := (len(b) + n - 1) / n
	chunks := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if start > len(b) {
			start = len(b)
		}
		if end > len(b) {
			end = len(b)
		}
		chunks[i] = b[start:end]
	}

	return chunks, nil
}

// Reassemble concatenates chunks in order
func Reassemble(chunks [][]byte) []byte {
	return bytes.Join(chunks, nil)
}

// MarshalCompressed serializes v as JSON and gzips it
func MarshalCompressed(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, common.Wrap(common.ErrCodec, err, "failed to marshal artifact")
	}
	return Compress(raw)
}

// UnmarshalCompressed inflates b and decodes the JSON into v
func UnmarshalCompressed(b []byte, v interface{}) error {
	raw, err := Decompress(b)
	if err != nil {
		return err
	}

	err = json.Unmarshal(raw, v)
	if err != nil {
		return common.Wrap(common.ErrCodec, err, "failed to unmarshal artifact")
	}
	return nil
}

// FileName returns the per-session file name {artifact}_{iterations}.{ext}
func FileName(artifact string, iterations uint64, ext string) string {
	return fmt.Sprintf("%s_%d.%s", artifact, iterations, ext)
}

// ChunkFileName returns the chunk file name {artifact}_{index}.json
func ChunkFileName(artifact string, index int) string {
	return fmt.Sprintf("%s_%d.json", artifact, index)
}
