// Package ingest turns tender files into session start requests.
//
// ExtractText reads a supported document from disk. Inbox watches a
// directory and starts one session per new document dropped into it.
package ingest
