// Copyright 2021 - 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package moerr

import (
	"context"
	"fmt"
	"io"
)

const (
	// 0 - 99 is OK.  They do not contain info, and are special handled
	// using a static instance, no alloc.
	Ok            uint16 = 0
	OkExpectedEOF uint16 = 2 // Expected End Of File
	OkExpectedEOB uint16 = 3 // Expected End of Batch

	OkMax uint16 = 99

	// Group 1: Internal errors
	ErrStart    uint16 = 20100
	ErrInternal uint16 = 20101
	ErrNYI      uint16 = 20102

	// Group 2: invalid input
	ErrBadConfig    uint16 = 20300
	ErrInvalidInput uint16 = 20301
	ErrInvalidArg   uint16 = 20303

	// Group 3: unexpected state and io errors
	ErrInvalidState  uint16 = 20400
	ErrFileNotFound  uint16 = 20405
	ErrUnexpectedEOF uint16 = 20407
	ErrEmptyRange    uint16 = 20408
	ErrSizeNotMatch  uint16 = 20409
	ErrInvalidPath   uint16 = 20411
	ErrIOPending     uint16 = 20412
	ErrIOTransient   uint16 = 20413

	// Group 4: scan and decode
	ErrSchemaMismatch      uint16 = 20500
	ErrUnsupportedEncoding uint16 = 20501
	ErrCorruptData         uint16 = 20502
	ErrFilterEvaluation    uint16 = 20503
	ErrSplitActive         uint16 = 20504
	ErrNoSuchColumn        uint16 = 20506

	// ErrEnd, the max value of error code
	ErrEnd uint16 = 65535
)

type moErrorMsgItem struct {
	errorMsgOrFormat string
	retryable        bool
}

var errorMsgRefer = map[uint16]moErrorMsgItem{
	// OK code not in this table.  They are signals, not failures, and
	// must not leak to the caller as errors.

	ErrInternal: {"internal error: %s", false},
	ErrNYI:      {"%s is not yet implemented", false},

	ErrBadConfig:    {"invalid configuration: %s", false},
	ErrInvalidInput: {"invalid input: %s", false},
	ErrInvalidArg:   {"invalid argument %s, bad value %s", false},

	ErrInvalidState:  {"invalid state %s", false},
	ErrFileNotFound:  {"file %s is not found", false},
	ErrUnexpectedEOF: {"unexpected end of file %s", false},
	ErrEmptyRange:    {"empty range of file %s", false},
	ErrSizeNotMatch:  {"file %s size does not match", false},
	ErrInvalidPath:   {"invalid file path %s", false},
	ErrIOPending:     {"file %s bytes not resident", true},
	ErrIOTransient:   {"transient io failure on file %s: %s", true},

	ErrSchemaMismatch:      {"schema mismatch: requested %s, stored %s", false},
	ErrUnsupportedEncoding: {"unsupported encoding %s for type %s", false},
	ErrCorruptData:         {"corrupt data in column %d at stream position %d: %s", false},
	ErrFilterEvaluation:    {"remaining filter evaluation failed: %s", false},
	ErrSplitActive:         {"split %s still active, finish or reset it first", false},
	ErrNoSuchColumn:        {"column %s not present in data columns", false},

	ErrEnd: {"internal error: end of errcode code", false},
}

func newError(ctx context.Context, code uint16, args ...any) *Error {
	var err *Error
	item, has := errorMsgRefer[code]
	if !has {
		panic(NewInternalError(ctx, "not exist error code: %d", code))
	}
	if len(args) == 0 {
		err = &Error{
			code:      code,
			message:   item.errorMsgOrFormat,
			retryable: item.retryable,
		}
	} else {
		err = &Error{
			code:      code,
			message:   fmt.Sprintf(item.errorMsgOrFormat, args...),
			retryable: item.retryable,
		}
	}
	return err
}

type Error struct {
	code      uint16
	message   string
	retryable bool
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) ErrorCode() uint16 {
	return e.code
}

// Retryable reports whether the failure is transient from the caller's
// point of view.  Retry policy itself lives with the orchestrator that
// owns split scheduling, not here.
func (e *Error) Retryable() bool {
	return e.retryable
}

func IsMoErrCode(e error, rc uint16) bool {
	if e == nil {
		return rc == Ok
	}
	me, ok := e.(*Error)
	if !ok {
		// This is not a moerr
		return false
	}
	return me.code == rc
}

// CanRetry classifies an error for the external orchestrator: transient
// errors may be retried by re-assigning the split, everything else is
// permanent for this split.
func CanRetry(e error) bool {
	me, ok := e.(*Error)
	if !ok {
		return false
	}
	return me.retryable
}

func DowncastError(e error) *Error {
	if err, ok := e.(*Error); ok {
		return err
	}
	return newError(context.Background(), ErrInternal, fmt.Sprintf("downcast error failed: %v", e))
}

// ConvertGoError converts a go error into a coded error.
// Note here we must return error, because nil error
// is the same as nil *Error -- Go strangeness.
func ConvertGoError(ctx context.Context, err error) error {
	// nil is nil
	if err == nil {
		return err
	}

	// already a moerr, return it as is
	if _, ok := err.(*Error); ok {
		return err
	}

	// Convert a few well known os/go error.
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// if io.EOF reaches here, we believe it is not expected.
		return NewUnexpectedEOF(ctx, err.Error())
	}

	return NewInternalError(ctx, "convert go error to moerr %v", err)
}

func (e *Error) Succeeded() bool {
	return e.code < OkMax
}

// Expected EOF/EOB are signals, not failures.  They are hit in tight
// decode loops, so they are served from static instances with no alloc,
// no format, no stack.
var errOkExpectedEOF = Error{OkExpectedEOF, "ExpectedEOF", false}
var errOkExpectedEOB = Error{OkExpectedEOB, "ExpectedEOB", false}

func GetOkExpectedEOF() *Error {
	return &errOkExpectedEOF
}

func GetOkExpectedEOB() *Error {
	return &errOkExpectedEOB
}

func NewInternalError(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInternal, xmsg)
}

func NewNYI(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrNYI, xmsg)
}

func NewBadConfig(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrBadConfig, xmsg)
}

func NewInvalidInput(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidInput, xmsg)
}

func NewInvalidArg(ctx context.Context, arg string, val any) *Error {
	return newError(ctx, ErrInvalidArg, arg, fmt.Sprintf("%v", val))
}

func NewInvalidState(ctx context.Context, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrInvalidState, xmsg)
}

func NewFileNotFound(ctx context.Context, f string) *Error {
	return newError(ctx, ErrFileNotFound, f)
}

func NewUnexpectedEOF(ctx context.Context, f string) *Error {
	return newError(ctx, ErrUnexpectedEOF, f)
}

func NewEmptyRange(ctx context.Context, f string) *Error {
	return newError(ctx, ErrEmptyRange, f)
}

func NewSizeNotMatch(ctx context.Context, f string) *Error {
	return newError(ctx, ErrSizeNotMatch, f)
}

func NewInvalidPath(ctx context.Context, f string) *Error {
	return newError(ctx, ErrInvalidPath, f)
}

func NewIOPending(ctx context.Context, f string) *Error {
	return newError(ctx, ErrIOPending, f)
}

func NewIOTransient(ctx context.Context, f string, cause error) *Error {
	return newError(ctx, ErrIOTransient, f, cause.Error())
}

func NewSchemaMismatch(ctx context.Context, requested, stored string) *Error {
	return newError(ctx, ErrSchemaMismatch, requested, stored)
}

func NewUnsupportedEncoding(ctx context.Context, encoding, typ string) *Error {
	return newError(ctx, ErrUnsupportedEncoding, encoding, typ)
}

func NewCorruptData(ctx context.Context, column uint32, pos int64, msg string, args ...any) *Error {
	xmsg := fmt.Sprintf(msg, args...)
	return newError(ctx, ErrCorruptData, column, pos, xmsg)
}

func NewFilterEvaluation(ctx context.Context, cause error) *Error {
	return newError(ctx, ErrFilterEvaluation, cause.Error())
}

func NewSplitActive(ctx context.Context, split string) *Error {
	return newError(ctx, ErrSplitActive, split)
}

func NewNoSuchColumn(ctx context.Context, column string) *Error {
	return newError(ctx, ErrNoSuchColumn, column)
}
