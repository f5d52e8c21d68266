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
	"errors"
	"fmt"
)

// Failure classes surfaced to callers; match with errors.Is
var (
	ErrMalformedInput     = errors.New("malformed input")
	ErrMalformedRoot      = fmt.Errorf("%w: malformed root", ErrMalformedInput)
	ErrEngine             = errors.New("engine error")
	ErrCircuitLoad        = fmt.Errorf("%w: circuit load failed", ErrEngine)
	ErrVerificationFailed = errors.New("verification failed")
	ErrCodec              = errors.New("codec error")
	ErrIO                 = errors.New("io error")
	ErrRandomness         = errors.New("failed to read randomness")
)

// Wrap annotates err with the given failure class and message, in the form
// "<class>: <msg>; <err>"
func Wrap(class error, err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		return fmt.Errorf("%w: %s", class, msg)
	}
	return fmt.Errorf("%w: %s; %s", class, msg, err.Error())
}
