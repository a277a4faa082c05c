package render

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

var (
	ErrEmptyDocument     = errors.New("document is empty")
	ErrMalformedDocument = errors.New("document is not a PDF")
	ErrNoPages           = errors.New("document has no pages")
)

var pdfMagic = []byte("%PDF-")

// checkDocument rejects payloads that cannot be a PDF at all.
func checkDocument(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyDocument
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return ErrMalformedDocument
	}
	return nil
}

// openDocument parses a PDF. The parser panics on some corrupt inputs, so
// panics are turned into errors.
func openDocument(data []byte) (doc *pdf.Reader, err error) {
	if err := checkDocument(data); err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			doc = nil
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()
	doc, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	return doc, nil
}

// Inspect returns the page count of a PDF. A document the parser cannot read
// reports -1 pages with a nil error; only a readable document with zero pages
// is rejected.
func Inspect(data []byte) (int, error) {
	if err := checkDocument(data); err != nil {
		return 0, err
	}
	doc, err := openDocument(data)
	if err != nil {
		return -1, nil
	}
	n, err := pageCount(doc)
	if err != nil {
		return -1, nil
	}
	if n == 0 {
		return 0, ErrNoPages
	}
	return n, nil
}

func pageCount(doc *pdf.Reader) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("count pages: %v", rec)
		}
	}()
	return doc.NumPage(), nil
}
