package revpk

import "testing"

func TestPair(t *testing.T) {
	for _, x := range []struct {
		Locale, Target, Level string
		Patch                 int
		Pack, Dir             string
	}{
		{"english", "client", "mp_rr_box", 0, "client_mp_rr_box.bsp.pak000_000.vpk", "englishclient_mp_rr_box.bsp.pak000_dir.vpk"},
		{"", "client", "mp_rr_box", 7, "client_mp_rr_box.bsp.pak000_007.vpk", "englishclient_mp_rr_box.bsp.pak000_dir.vpk"},
		{"spanish", "server", "mp_lobby", 12, "server_mp_lobby.bsp.pak000_012.vpk", "spanishserver_mp_lobby.bsp.pak000_dir.vpk"},
		{"", "", "", 0, "server_map_unknown.bsp.pak000_000.vpk", "englishserver_map_unknown.bsp.pak000_dir.vpk"},
	} {
		pack, dir := Pair(x.Locale, x.Target, x.Level, x.Patch)
		if pack != x.Pack {
			t.Errorf("Pair(%q,%q,%q,%d) pack = %q, expected %q", x.Locale, x.Target, x.Level, x.Patch, pack, x.Pack)
		}
		if dir != x.Dir {
			t.Errorf("Pair(%q,%q,%q,%d) dir = %q, expected %q", x.Locale, x.Target, x.Level, x.Patch, dir, x.Dir)
		}
	}
}

func TestStripLocalePrefix(t *testing.T) {
	for _, x := range []struct {
		Name, Base, Locale string
	}{
		{"englishclient_mp_rr_box.bsp.pak000_dir.vpk", "client_mp_rr_box.bsp.pak000_dir.vpk", "english"},
		{"tchineseserver_mp_x.bsp.pak000_dir.vpk", "server_mp_x.bsp.pak000_dir.vpk", "tchinese"},
		{"client_mp_rr_box.bsp.pak000_dir.vpk", "client_mp_rr_box.bsp.pak000_dir.vpk", ""},
	} {
		base, locale := StripLocalePrefix(x.Name)
		if base != x.Base || locale != x.Locale {
			t.Errorf("StripLocalePrefix(%q) = (%q, %q), expected (%q, %q)", x.Name, base, locale, x.Base, x.Locale)
		}
	}
}

func TestPackFileName(t *testing.T) {
	for _, x := range []struct {
		Dir   string
		Index PackIndex
		Name  string
		Error bool
	}{
		{"englishclient_mp_rr_box.bsp.pak000_dir.vpk", 0, "client_mp_rr_box.bsp.pak000_000.vpk", false},
		{"spanishserver_mp_x.bsp.pak000_dir.vpk", 3, "server_mp_x.bsp.pak000_003.vpk", false},
		{"germanclient_mp_y.bsp.pak000_dir.vpk", IndexDeltaCommon, "client_mp_delta_common.bsp.pak000_000.vpk", false},
		{"some/dir/englishclient_mp_z.bsp.pak000_dir.vpk", 1, "client_mp_z.bsp.pak000_001.vpk", false},
		{"client_mp_rr_box.bsp.pak000_002.vpk", 0, "", true},
	} {
		name, err := PackFileName(x.Dir, x.Index)
		if (err != nil) != x.Error {
			t.Errorf("PackFileName(%q, %v): unexpected error state: %v", x.Dir, x.Index, err)
			continue
		}
		if name != x.Name {
			t.Errorf("PackFileName(%q, %v) = %q, expected %q", x.Dir, x.Index, name, x.Name)
		}
	}
}

func TestDirBaseName(t *testing.T) {
	for _, x := range []struct {
		Name, Base string
	}{
		{"englishclient_mp_rr_box.bsp.pak000_dir.vpk", "englishclient_mp_rr_box"},
		{"vpk/spanishserver_mp_x.bsp.pak000_dir.vpk", "spanishserver_mp_x"},
		{"weird_name.vpk", "weird_name.vpk"},
	} {
		if got := DirBaseName(x.Name); got != x.Base {
			t.Errorf("DirBaseName(%q) = %q, expected %q", x.Name, got, x.Base)
		}
	}
}

func TestSplitBaseName(t *testing.T) {
	locale, target, level, ok := SplitBaseName("englishclient_mp_rr_box")
	if !ok || locale != "english" || target != "client" || level != "mp_rr_box" {
		t.Errorf("got (%q, %q, %q, %v)", locale, target, level, ok)
	}
	locale, target, level, ok = SplitBaseName("client_mp_x")
	if !ok || locale != "english" || target != "client" || level != "mp_x" {
		t.Errorf("got (%q, %q, %q, %v)", locale, target, level, ok)
	}
	if _, _, _, ok := SplitBaseName("nounderscore"); ok {
		t.Errorf("expected failure for name with no separator")
	}
}

func TestSanitizeDirPath(t *testing.T) {
	for _, x := range []struct {
		Path, Want string
	}{
		{"vpk/client_mp_rr_box.bsp.pak000_027.vpk", "vpk/client_mp_rr_box.bsp.pak000_dir.vpk"},
		{"englishclient_mp_rr_box.bsp.pak000_dir.vpk", "englishclient_mp_rr_box.bsp.pak000_dir.vpk"},
		{"not_a_vpk.txt", "not_a_vpk.txt"},
	} {
		if got := SanitizeDirPath(x.Path); got != x.Want {
			t.Errorf("SanitizeDirPath(%q) = %q, expected %q", x.Path, got, x.Want)
		}
	}
}
