package textclean

import "testing"

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf normalized", "a\r\nb\rc", "a\nb\nc"},
		{"trailing spaces stripped", "line one   \nline two\t\n", "line one\nline two"},
		{"space runs collapsed", "a    b\tc", "a b\tc"},
		{"tab runs collapsed", "a\t\tb", "a b"},
		{"blank runs limited", "a\n\n\n\n\nb", "a\n\nb"},
		{"surrounding whitespace trimmed", "  \n  text  \n  ", "text"},
		{"cjk preserved", "物理笔记：  牛顿第二定律\r\n\r\n\r\nF = ma", "物理笔记： 牛顿第二定律\n\nF = ma"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Clean(c.in); got != c.want {
				t.Errorf("Clean(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
