// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Configuration related
	ErrConfigInvalid = newLinkError("invalid configuration", 1, false)
	ErrConfigMissing = newLinkError("missing required configuration", 2, false)

	// Node related
	ErrNodeNotConnected     = newLinkError("node not connected", 100, true)
	ErrNodeNotAvailable     = newLinkError("no node available", 101, true)
	ErrNodeHandshakeFailed  = newLinkError("node handshake failed", 102, true)
	ErrNodeConnectTimeout   = newLinkError("node connect timed out", 103, true)
	ErrNodeReconnectGivenUp = newLinkError("node reconnect attempts exhausted", 104, false)
	ErrNodeDestroyed        = newLinkError("node destroyed", 105, false)
	ErrNodeSendFailed       = newLinkError("node send failed", 106, true)
	ErrNodeRequestFailed    = newLinkError("node rest request failed", 107, true)

	// Protocol related
	ErrProtocolUnexpectedOp = newLinkError("unexpected protocol op", 200, false)
	ErrProtocolMalformed    = newLinkError("malformed protocol frame", 201, false)

	// Session related
	ErrSessionNotFound  = newLinkError("session not found", 300, false)
	ErrSessionDuplicate = newLinkError("session already exists", 301, false)
	ErrSessionState     = newLinkError("operation not allowed in current session state", 302, false)
	ErrSessionDestroyed = newLinkError("session destroyed", 303, false)
	ErrVoiceConnect     = newLinkError("voice connect failed", 304, true)
	ErrStageNegotiation = newLinkError("stage speaker negotiation failed", 305, false)

	// Track related
	ErrTrackInvalid       = newLinkError("invalid track", 400, false)
	ErrTrackResolveFailed = newLinkError("track resolution failed", 401, true)
	ErrTrackNoResults     = newLinkError("no search results", 402, false)
	ErrTrackLoadFailed    = newLinkError("track load failed", 403, true)

	// Catalog related
	ErrCatalogAuth      = newLinkError("catalog authentication failed", 500, true)
	ErrCatalogRequest   = newLinkError("catalog request failed", 501, true)
	ErrCatalogNotFound  = newLinkError("catalog resource not found", 502, false)
	ErrCatalogNoToken   = newLinkError("catalog credential not available", 503, true)
	ErrCatalogBadLookup = newLinkError("unrecognized catalog url", 504, false)

	// Parameter related
	ErrParameterInvalid = newLinkError("invalid parameter", 1100, false)
	ErrParameterMissing = newLinkError("missing parameter", 1101, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to linkError
	errUnexpected = newLinkError("unexpected error", (1<<16)-1, false)
)

type linkError struct {
	msg       string
	retriable bool
	errCode   int32
}

func newLinkError(msg string, code int32, retriable bool) linkError {
	return linkError{
		msg:       msg,
		retriable: retriable,
		errCode:   code,
	}
}

func (e linkError) code() int32 {
	return e.errCode
}

func (e linkError) Error() string {
	return e.msg
}

func (e linkError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(linkError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Combine merges multiple errors into one, ignoring nil entries.
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
