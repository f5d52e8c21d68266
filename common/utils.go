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

package common

import (
	"crypto/rand"
	"io"
	"strings"
)

// StringOrNil returns the given string or nil when empty
func StringOrNil(str string) *string {
	if str == "" {
		return nil
	}
	return &str
}

// RandomBytes reads length bytes from the given source, or from crypto/rand
// when src is nil; a short read is fatal for the caller
func RandomBytes(src io.Reader, length int) ([]byte, error) {
	if src == nil {
		src = rand.Reader
	}

	b := make([]byte, length)
	_, err := io.ReadFull(src, b)
	if err != nil {
		return nil, Wrap(ErrRandomness, err, "error generating %d random bytes", length)
	}
	return b, nil
}

// IsRemoteLocation returns true if the given artifact location is an http(s) URL
func IsRemoteLocation(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
