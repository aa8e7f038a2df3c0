package markdown

import "testing"

func TestRender(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"bold", "a **bold** word", "a <strong>bold</strong> word"},
		{"italic", "an *italic* word", "an <em>italic</em> word"},
		{"bold and italic", "**b** and *i*", "<strong>b</strong> and <em>i</em>"},
		{"line break", "one\ntwo", "one<br />two"},
		{"escapes html", `<script>alert("x")</script>`, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;"},
		{"escapes inside emphasis", "**<b>**", "<strong>&lt;b&gt;</strong>"},
		{"ampersand", "fish & chips", "fish &amp; chips"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Render(tc.input); got != tc.want {
				t.Errorf("Render(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestRenderNeverEmitsRawAngleBrackets(t *testing.T) {
	hostile := `*<img src=x onerror=alert(1)>*`
	got := Render(hostile)
	if want := "<em>&lt;img src=x onerror=alert(1)&gt;</em>"; got != want {
		t.Fatalf("Render(%q) = %q, want %q", hostile, got, want)
	}
}
