// Package tesseract provides the Tesseract OCR engine.
//
// The engine needs libtesseract and is only compiled with the "ocr" build
// tag. Without the tag New returns an engine whose every call fails with
// ocr.ErrOCRNotEnabled, which callers treat like any other OCR warning.
package tesseract
