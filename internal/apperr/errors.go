// Package apperr はAPI全体で共有するエラー分類を提供します。
package apperr

import (
	"errors"
	"fmt"
)

// Kind はエラーの分類を表します。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUpstream
	KindUnauthorized
	KindConflict
	KindTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindTooLarge:
		return "too_large"
	default:
		return "internal"
	}
}

// Error は分類・エラーコード・利用者向けメッセージを保持します。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind != KindUpstream {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New は任意の分類のエラーを作成します。
func New(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Validation は呼び出し側の入力不備を表すエラーを作成します。
func Validation(code, message string) *Error {
	return New(KindValidation, code, message, nil)
}

// NotFound は対象が存在しない（または所有者が異なる）ことを表すエラーを作成します。
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message, nil)
}

// Upstream は外部ライブラリ・外部コマンドの失敗をラップします。
// メッセージは外部から返された文字列をそのまま保持します。
func Upstream(code string, err error) *Error {
	msg := "upstream error"
	if err != nil {
		msg = err.Error()
	}
	return New(KindUpstream, code, msg, err)
}

// Internal は分類できないエラーをラップします。
func Internal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: msg, Err: err}
}

// KindOf は err の分類を返します。*Error を含まない場合は KindInternal です。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Message はジョブのエラー欄に記録する文字列を返します。
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
