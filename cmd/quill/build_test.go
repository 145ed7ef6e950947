package main

import "testing"

func TestResolveUI(t *testing.T) {
	cases := []struct {
		value  string
		tty    bool
		want   bool
		wantOK bool
	}{
		{"on", false, true, true},
		{"ON", false, true, true},
		{"off", true, false, true},
		{"auto", true, true, true},
		{"auto", false, false, true},
		{"", true, true, true},
		{"  auto ", false, false, true},
		{"maybe", true, false, false},
	}
	for _, tc := range cases {
		got, err := resolveUI(tc.value, tc.tty)
		if tc.wantOK != (err == nil) {
			t.Errorf("resolveUI(%q): err = %v", tc.value, err)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("resolveUI(%q, tty=%v) = %v, want %v", tc.value, tc.tty, got, tc.want)
		}
	}
}

func TestDisplayFileList(t *testing.T) {
	files := []string{"/proj/out/a.qast", "/proj/out/sub/b.qast", "/elsewhere/c.qast"}
	got := displayFileList(files, "/proj/out")
	want := []string{"a.qast", "sub/b.qast", "/elsewhere/c.qast"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %q want %q", i, got[i], want[i])
		}
	}
}
