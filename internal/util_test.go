package internal

import "testing"

func TestTopLevelDir(t *testing.T) {
	for _, x := range []struct {
		Path string
		Dir  string
	}{
		{"", ""},
		{"file.txt", ""},
		{"sound/music/track.wav", "sound"},
		{"depot/thing.bin", "depot"},
		{"media\\intro.bik", "media"},
		{"/shaders/x.vcs", "shaders"},
	} {
		if got := TopLevelDir(x.Path); got != x.Dir {
			t.Errorf("ERR: TopLevelDir(%q) = %q, expected %q", x.Path, got, x.Dir)
		}
	}
}

func TestFormatBytesSI(t *testing.T) {
	for _, x := range []struct {
		N int64
		S string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.0 kB"},
		{1048576, "1.0 MB"},
		{-2500000, "-2.5 MB"},
		{1500000000, "1.5 GB"},
	} {
		if got := FormatBytesSI(x.N); got != x.S {
			t.Errorf("ERR: FormatBytesSI(%d) = %q, expected %q", x.N, got, x.S)
		}
	}
}
