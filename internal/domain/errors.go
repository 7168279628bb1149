package domain

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtraction        = errors.New("extraction failed")
	ErrEmbedding         = errors.New("embedding failed")
	ErrSummarization     = errors.New("summarization failed")
	ErrAnswer            = errors.New("answer failed")

	// ErrIndexClosed is returned when searching an index that was invalidated
	// because its document was replaced or removed.
	ErrIndexClosed = errors.New("index closed")
	// ErrBusy is returned when a question is submitted while another answer
	// is still streaming.
	ErrBusy       = errors.New("another question is in flight")
	ErrNoDocument = errors.New("no document loaded")
)
