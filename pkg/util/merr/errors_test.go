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
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrModelNotFound("blog.article")
	errors.Wrap(err, "failed to resolve model")
	s.ErrorIs(err, ErrModelNotFound)
	s.Equal(Code(ErrModelNotFound), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))

	sameCodeErr := newZeusError("new error", ErrModelNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrModelNotFound))
}

func (s *ErrSuite) TestWrap() {
	// Format 相关错误。
	s.ErrorIs(WrapErrFormatNotFound("msgpack", "failed to dump"), ErrFormatNotFound)
	s.ErrorIs(WrapErrFormatDuplicate("json"), ErrFormatDuplicate)

	// Model 相关错误。
	s.ErrorIs(WrapErrModelNotFound("blog.article", "failed to load"), ErrModelNotFound)
	s.ErrorIs(WrapErrModelDuplicate("blog.article"), ErrModelDuplicate)
	s.ErrorIs(WrapErrModelIllegalLabel("Article", "label must be lowercase app.name"), ErrModelIllegalLabel)
	s.ErrorIs(WrapErrModelNotStruct("*int"), ErrModelNotStruct)

	// Field 相关错误。
	s.ErrorIs(WrapErrFieldNotFound("blog.article", "headline", "failed to assign"), ErrFieldNotFound)
	s.ErrorIs(WrapErrFieldTypeMismatch("blog.article", "rating", errors.New("cannot cast")), ErrFieldTypeMismatch)
	s.ErrorIs(WrapErrFieldUnsupported("blog.article", "payload", "chan int"), ErrFieldUnsupported)
	s.ErrorIs(WrapErrPkMissing("blog.article", "failed to save"), ErrPkMissing)

	// Record / stream 相关错误。
	s.ErrorIs(WrapErrRecordCorrupted("blog.article", errors.New("missing fields")), ErrRecordCorrupted)
	s.ErrorIs(WrapErrRecordCorrupted("blog.article", nil), ErrRecordCorrupted)
	s.ErrorIs(WrapErrStreamMalformed("xml", errors.New("unexpected token")), ErrStreamMalformed)
	s.ErrorIs(WrapErrVersionIncompatible("2.1.0", ">=1.0.0 <2.0.0"), ErrVersionIncompatible)
	s.ErrorIs(WrapErrNaturalKeyUnresolved("blog.tag", []any{"go"}), ErrNaturalKeyUnresolved)

	// Store 相关错误。
	s.ErrorIs(WrapErrStoreKeyNotFound("blog.article/42", "failed to get"), ErrStoreKeyNotFound)
	s.ErrorIs(WrapErrStoreIoFailed("blog.article/42", os.ErrClosed), ErrStoreIoFailed)
	s.ErrorIs(WrapErrStoreUnavailable("localhost:2379", os.ErrDeadlineExceeded), ErrStoreUnavailable)

	// 参数相关错误。
	s.ErrorIs(WrapErrParameterInvalid(8, 1, "failed to dump"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidRange(1, 1<<16, 0, "batch size out of range"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("format", "no format parameter"), ErrParameterMissing)

	// 通用错误。
	s.ErrorIs(WrapErrOperationNotSupported("partial update"), ErrOperationNotSupported)
}

func (s *ErrSuite) TestRetriable() {
	s.False(IsRetryableErr(ErrFormatNotFound))
	s.False(IsRetryableErr(ErrModelNotFound))
	s.True(IsRetryableErr(ErrStoreIoFailed))
	s.True(IsRetryableErr(ErrStoreUnavailable))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrFieldNotFound("blog.article", "headline"), WrapErrModelNotFound("blog.article"))
	s.Equal(Code(ErrModelNotFound), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
