package htmltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "plain paragraph",
			html: "<p>hello world</p>",
			want: "hello world",
		},
		{
			name: "br becomes newline",
			html: "<p>line one<br>line two</p>",
			want: "line one\nline two",
		},
		{
			name: "paragraphs separated by blank line",
			html: "<p>first</p><p>second</p>",
			want: "first\n\nsecond",
		},
		{
			name: "hashtag link keeps its text",
			html: `<p>read <a class="hashtag" href="https://example.com/tag/books">#books</a></p>`,
			want: "read #books",
		},
		{
			name: "mention link keeps its text",
			html: `<p><a class="mention" href="https://example.com/@alice">@alice</a> hi</p>`,
			want: "@alice hi",
		},
		{
			name: "plain link collapses to href",
			html: `<p>see <a href="https://example.com/a/very/long/path">example.com/a/very/lo…</a></p>`,
			want: "see https://example.com/a/very/long/path",
		},
		{
			name: "invisible spans dropped",
			html: `<p>look <span class="invisible">https://</span>example.com here</p>`,
			want: "look example.com here",
		},
		{
			name: "entities decoded",
			html: "<p>fish &amp; chips</p>",
			want: "fish & chips",
		},
		{
			name: "empty input",
			html: "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Extract(tt.html)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeMentions(t *testing.T) {
	t.Parallel()
	got := SanitizeMentions("hey @alice and @bob@remote.example")
	require.NotContains(t, got, "@alice")
	require.NotContains(t, got, "@bob")
	// The visible text survives, split by a zero-width space.
	require.Contains(t, got, "alice")
	require.Equal(t, 3, strings.Count(got, "​"))
}

func TestStripPairedPunctuation(t *testing.T) {
	t.Parallel()
	require.Equal(t, "quoted and bracketed text",
		StripPairedPunctuation(`“quoted” and [bracketed] (text)`))
	require.Equal(t, "don't touch apostrophes?!",
		StripPairedPunctuation("don't touch apostrophes?!"))
}

func TestStripLeadingMention(t *testing.T) {
	t.Parallel()
	require.Equal(t, "pin", StripLeadingMention("@ebooks pin"))
	require.Equal(t, "unpin that", StripLeadingMention("@ebooks@home.example unpin that"))
	require.Equal(t, "no mention here", StripLeadingMention("no mention here"))
	require.Equal(t, "mid @mention stays", StripLeadingMention("mid @mention stays"))
}
