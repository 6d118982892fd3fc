package models

import "errors"

var (
	// ErrDocumentNotFound 文档不存在错误
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentNotReady 文档尚未完成处理，不能检索
	ErrDocumentNotReady = errors.New("document is not ready for querying")

	// ErrInvalidDocumentStatus 无效的文档状态错误
	ErrInvalidDocumentStatus = errors.New("invalid document status")
)
