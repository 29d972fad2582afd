// SPDX-License-Identifier: BSD-3-Clause

package process

import "errors"

// ErrServicePanic wraps a recovered panic from inside a supervised service's Run method.
var ErrServicePanic = errors.New("service panicked during execution")
