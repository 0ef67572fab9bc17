// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package zoom

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks credential or permission failures (HTTP 401/403).
var ErrUnauthorized = errors.New("unauthorized")

// EnumerationError means the recordings listing for one account could not
// be completed, retries included. It aborts that account only; the run
// continues for other accounts.
type EnumerationError struct {
	Account string
	Err     error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerate recordings for %s: %v", e.Account, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// AuthError means the API rejected our credential for an account. Fatal
// for that account, logged, run continues for other accounts.
type AuthError struct {
	Account string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failure for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
