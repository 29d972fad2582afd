// SPDX-License-Identifier: BSD-3-Clause

package webui

import "errors"

// ErrUnknownTag indicates a REST request referenced a tag the Tag Manager
// never registered.
var ErrUnknownTag = errors.New("webui: unknown tag")

// ErrUnknownCommand indicates a service command request's "command" field
// did not name a valid PackML command.
var ErrUnknownCommand = errors.New("webui: unknown command")

// ErrMissingSigningKey indicates Run was called without a JWT signing key
// configured; the Web UI refuses to start rather than sign tokens nobody
// can verify securely.
var ErrMissingSigningKey = errors.New("webui: no JWT signing key configured")

// ErrMissingTagParam indicates a history query omitted its required tag
// name query parameter ("tag" or "tags").
var ErrMissingTagParam = errors.New("webui: missing tag query parameter")

// ErrTooManyTags indicates a /history/tags/multi request named more tags
// than maxMultiHistoryTags.
var ErrTooManyTags = errors.New("webui: too many tags requested")
