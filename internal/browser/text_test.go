package browser

import (
	"strings"
	"testing"
)

func TestFlattenHTML(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "joins text nodes with spaces",
			in:   "<div><p>Application</p><p>received</p></div>",
			want: "Application received",
		},
		{
			name: "skips script and style",
			in:   "<body><style>p{color:red}</style><script>track()</script><p>Thanks!</p></body>",
			want: "Thanks!",
		},
		{
			name: "collapses surrounding whitespace",
			in:   "<p>\n   Your application   \n</p>",
			want: "Your application",
		},
		{
			name: "empty document",
			in:   "",
			want: "",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := flattenHTML(strings.NewReader(c.in))
			if err != nil {
				t.Fatalf("flattenHTML: %v", err)
			}
			if got != c.want {
				t.Errorf("flattenHTML(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
