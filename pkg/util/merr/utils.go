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

const InputErrorFlagKey string = "is_input_error"

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case zeusError:
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
	if err, ok := err.(zeusError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func GetErrorType(err error) ErrorType {
	if merr, ok := err.(zeusError); ok {
		return merr.errType
	}

	return SystemError
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(zeusError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

// Format 相关错误封装。
func WrapErrFormatNotFound(name string, msg ...string) error {
	err := wrapFields(ErrFormatNotFound, value("format", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFormatDuplicate(name string, msg ...string) error {
	err := wrapFields(ErrFormatDuplicate, value("format", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Model 相关错误封装。
func WrapErrModelNotFound(label string, msg ...string) error {
	err := wrapFields(ErrModelNotFound, value("model", label))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrModelDuplicate(label string, msg ...string) error {
	err := wrapFields(ErrModelDuplicate, value("model", label))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrModelIllegalLabel(label string, reason string) error {
	return wrapFieldsWithDesc(ErrModelIllegalLabel, reason, value("label", label))
}

func WrapErrModelNotStruct(typeName string) error {
	return wrapFields(ErrModelNotStruct, value("type", typeName))
}

// Field 相关错误封装。
func WrapErrFieldNotFound(model, field string, msg ...string) error {
	err := wrapFields(ErrFieldNotFound,
		value("model", model),
		value("field", field),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrFieldTypeMismatch(model, field string, cause error) error {
	return wrapFieldsWithDesc(ErrFieldTypeMismatch, cause.Error(),
		value("model", model),
		value("field", field),
	)
}

func WrapErrFieldUnsupported(model, field, typeName string) error {
	return wrapFields(ErrFieldUnsupported,
		value("model", model),
		value("field", field),
		value("type", typeName),
	)
}

func WrapErrPkMissing(model string, msg ...string) error {
	err := wrapFields(ErrPkMissing, value("model", model))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Record / stream 相关错误封装。
func WrapErrRecordCorrupted(model string, cause error) error {
	if cause == nil {
		return wrapFields(ErrRecordCorrupted, value("model", model))
	}
	return wrapFieldsWithDesc(ErrRecordCorrupted, cause.Error(), value("model", model))
}

func WrapErrStreamMalformed(format string, cause error) error {
	if cause == nil {
		return wrapFields(ErrStreamMalformed, value("format", format))
	}
	return wrapFieldsWithDesc(ErrStreamMalformed, cause.Error(), value("format", format))
}

func WrapErrVersionIncompatible(got, want string) error {
	return wrapFields(ErrVersionIncompatible,
		value("got", got),
		value("want", want),
	)
}

func WrapErrNaturalKeyUnresolved(model string, key any) error {
	return wrapFields(ErrNaturalKeyUnresolved,
		value("model", model),
		value("key", key),
	)
}

// Store 相关错误封装。
func WrapErrStoreKeyNotFound(key string, msg ...string) error {
	err := wrapFields(ErrStoreKeyNotFound, value("key", key))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrStoreIoFailed(key string, cause error) error {
	if cause == nil {
		return wrapFields(ErrStoreIoFailed, value("key", key))
	}
	return wrapFieldsWithDesc(ErrStoreIoFailed, cause.Error(), value("key", key))
}

func WrapErrStoreUnavailable(endpoint string, cause error) error {
	if cause == nil {
		return wrapFields(ErrStoreUnavailable, value("endpoint", endpoint))
	}
	return wrapFieldsWithDesc(ErrStoreUnavailable, cause.Error(), value("endpoint", endpoint))
}

// 参数相关错误封装。
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
	err := wrapFields(ErrParameterInvalid, bound("value", actual, lower, upper))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterMissing(param string, msg ...string) error {
	err := wrapFields(ErrParameterMissing, value("missing_param", param))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrOperationNotSupported(operation string, msg ...string) error {
	err := wrapFields(ErrOperationNotSupported, value("operation", operation))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err zeusError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err zeusError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}
