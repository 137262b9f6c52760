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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code returns the error code of the given error,
// WARN: DO NOT use this for error type judgement, use errors.Is instead.
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case linkError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(linkError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

type errorField struct {
	name  string
	value any
}

func value(name string, value any) errorField {
	return errorField{name: name, value: value}
}

func wrapFields(err linkError, fields ...errorField) error {
	kvs := make([]string, 0, len(fields))
	for _, f := range fields {
		kvs = append(kvs, fmt.Sprintf("%s=%v", f.name, f.value))
	}
	if len(kvs) == 0 {
		return errors.Wrap(err, "")
	}
	return errors.Wrapf(err, "%s", strings.Join(kvs, ", "))
}

func wrapFieldsWithDesc(err linkError, desc string, fields ...errorField) error {
	kvs := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		kvs = append(kvs, fmt.Sprintf("%s=%v", f.name, f.value))
	}
	kvs = append(kvs, desc)
	return errors.Wrapf(err, "%s", strings.Join(kvs, ", "))
}

// Configuration related error wrapping.

func WrapErrConfigInvalid(field string, v any, reason string) error {
	return wrapFieldsWithDesc(ErrConfigInvalid, reason, value(field, v))
}

func WrapErrConfigMissing(field string) error {
	return wrapFields(ErrConfigMissing, value("field", field))
}

// Node related error wrapping.

func WrapErrNodeNotConnected(nodeID int, state string) error {
	return wrapFields(ErrNodeNotConnected, value("node", nodeID), value("state", state))
}

func WrapErrNodeNotAvailable(msg ...string) error {
	err := errors.Wrap(ErrNodeNotAvailable, "no connected node in pool")
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrNodeHandshakeFailed(nodeID int, cause error) error {
	return errors.Wrapf(Combine(ErrNodeHandshakeFailed, cause), "node=%d", nodeID)
}

func WrapErrNodeConnectTimeout(nodeID int, timeout any) error {
	return wrapFields(ErrNodeConnectTimeout, value("node", nodeID), value("timeout", timeout))
}

func WrapErrNodeReconnectGivenUp(nodeID int, attempts int) error {
	return wrapFields(ErrNodeReconnectGivenUp, value("node", nodeID), value("attempts", attempts))
}

func WrapErrNodeDestroyed(nodeID int, reason string) error {
	return wrapFieldsWithDesc(ErrNodeDestroyed, reason, value("node", nodeID))
}

func WrapErrNodeSendFailed(nodeID int, cause error) error {
	return errors.Wrapf(Combine(ErrNodeSendFailed, cause), "node=%d", nodeID)
}

func WrapErrNodeRequestFailed(nodeID int, route string, cause error) error {
	return errors.Wrapf(Combine(ErrNodeRequestFailed, cause), "node=%d, route=%s", nodeID, route)
}

// Protocol related error wrapping.

func WrapErrProtocolUnexpectedOp(op string) error {
	return wrapFields(ErrProtocolUnexpectedOp, value("op", op))
}

func WrapErrProtocolMalformed(op string, cause error) error {
	return errors.Wrapf(Combine(ErrProtocolMalformed, cause), "op=%s", op)
}

// Session related error wrapping.

func WrapErrSessionNotFound(guildID any) error {
	return wrapFields(ErrSessionNotFound, value("guild", guildID))
}

func WrapErrSessionDuplicate(guildID any) error {
	return wrapFields(ErrSessionDuplicate, value("guild", guildID))
}

func WrapErrSessionState(guildID any, state string, op string) error {
	return wrapFields(ErrSessionState,
		value("guild", guildID),
		value("state", state),
		value("op", op),
	)
}

func WrapErrSessionDestroyed(guildID any, reason string) error {
	return wrapFieldsWithDesc(ErrSessionDestroyed, reason, value("guild", guildID))
}

func WrapErrVoiceConnect(guildID any, reason string) error {
	return wrapFieldsWithDesc(ErrVoiceConnect, reason, value("guild", guildID))
}

func WrapErrStageNegotiation(guildID any, channelID any) error {
	return wrapFields(ErrStageNegotiation, value("guild", guildID), value("channel", channelID))
}

// Track related error wrapping.

func WrapErrTrackInvalid(title string, msg ...string) error {
	err := wrapFields(ErrTrackInvalid, value("title", title))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTrackResolveFailed(title string, cause error) error {
	return errors.Wrapf(Combine(ErrTrackResolveFailed, cause), "title=%s", title)
}

func WrapErrTrackNoResults(query string) error {
	return wrapFields(ErrTrackNoResults, value("query", query))
}

func WrapErrTrackLoadFailed(identifier string, severity string, msg string) error {
	return wrapFieldsWithDesc(ErrTrackLoadFailed, msg,
		value("identifier", identifier),
		value("severity", severity),
	)
}

// Catalog related error wrapping.

func WrapErrCatalogAuth(cause error) error {
	return Combine(ErrCatalogAuth, cause)
}

func WrapErrCatalogRequest(route string, status int) error {
	return wrapFields(ErrCatalogRequest, value("route", route), value("status", status))
}

func WrapErrCatalogNotFound(route string) error {
	return wrapFields(ErrCatalogNotFound, value("route", route))
}

func WrapErrCatalogBadLookup(url string) error {
	return wrapFields(ErrCatalogBadLookup, value("url", url))
}

// Parameter related error wrapping.

func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidRange[T any](lower, upper, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected in", fmt.Sprintf("[%v, %v]", lower, upper)),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterMissing(name string, msg ...string) error {
	err := wrapFields(ErrParameterMissing, value("missing", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}
