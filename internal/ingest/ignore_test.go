package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIgnore_Defaults(t *testing.T) {
	l, err := loadIgnore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{".DS_Store", "tender.md~", "rfp.txt.part", ".inboxignore"} {
		assert.True(t, l.Match("/inbox/"+name), name)
	}
	assert.False(t, l.Match("/inbox/tender.md"))
}

func TestLoadIgnore_File(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, IgnoreFile, "# drafts stay local\n\ndraft-*\n/notes.txt/\n[invalid\n")

	l, err := loadIgnore(dir)
	require.NoError(t, err)
	assert.True(t, l.Match("draft-acme.md"))
	assert.True(t, l.Match("notes.txt"))
	assert.False(t, l.Match("final-acme.md"))
	assert.NotContains(t, l.patterns, "[invalid")
}

func TestParseIgnoreLine(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"   ":           "",
		"# comment":     "",
		"*.bak  ":       "*.bak",
		"/archive/":     "archive",
		"[unterminated": "",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseIgnoreLine(in), in)
	}
}

func TestInbox_SkipsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, IgnoreFile, "draft-*\n")

	starter := &fakeStarter{}
	b, err := NewInbox(dir, starter, nil)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	writeFile(t, dir, "draft-acme.txt", "Not ready.")
	writeFile(t, dir, "acme.txt", "A tender.")

	r := waitResult(t, b)
	assert.Equal(t, "acme.txt", r.Session.ID)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, starter.count())
}
