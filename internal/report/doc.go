// Package report renders the document history kept in the ledger.
//
// This package contains writers for different output formats:
//   - SimpleWriter: plain text for terminal display
//   - MarkdownWriter: Markdown for sharing, with a status chart
//   - JSONWriter: structured JSON for tool integration
//
// Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
