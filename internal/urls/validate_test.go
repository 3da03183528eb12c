package urls

import (
	"errors"
	"reflect"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want error
	}{
		{"https://www.newspapers.com/article/the-times/12345/", nil},
		{"http://access-newspaperarchive-com.lapl.idm.oclc.org/us/page-10", nil},
		{"", ErrEmpty},
		{"   ", ErrEmpty},
		{"not-a-url", ErrHost},
		{"ftp://files.example.com/a", ErrScheme},
		{"javascript:alert(1)", ErrScheme},
		{"http://localhost:8080/x", ErrLocalAddress},
		{"http://127.0.0.1/x", ErrLocalAddress},
		{"http://192.168.1.20/x", ErrLocalAddress},
		{"http://10.0.0.4/x", ErrLocalAddress},
		{"http://[::1]/x", ErrLocalAddress},
		{"https://intranet/x", ErrHost},
	}

	for _, tc := range cases {
		err := Validate(tc.raw)
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", tc.raw, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.raw, tc.want, err)
		}
	}
}

func TestExtractFromText(t *testing.T) {
	t.Parallel()

	text := `See https://www.newspapers.com/article/1/. Also (https://example.com/b?x=1) and
https://www.newspapers.com/article/1/ again, plus http://proquest.com/docview/42, done.`

	got := ExtractFromText(text)
	want := []string{
		"https://www.newspapers.com/article/1/",
		"https://example.com/b?x=1",
		"http://proquest.com/docview/42",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected urls:\n got %v\nwant %v", got, want)
	}
}

func TestExtractLines(t *testing.T) {
	t.Parallel()

	text := "# clippings\nhttps://good.example/a\nnot-a-url\n\nread this https://good.example/b today\nhttps://good.example/a\n"
	got := ExtractLines(text)
	want := []string{"https://good.example/a", "not-a-url", "https://good.example/b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines:\n got %v\nwant %v", got, want)
	}
}
