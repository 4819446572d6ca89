package packstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/r1tools/revpk"
	"github.com/r1tools/revpk/manifest"
)

func writeMultiManifest(t *testing.T, workspace string, m *manifest.Multi) {
	t.Helper()
	dir := filepath.Join(workspace, "manifest")
	if err := os.MkdirAll(dir, 0777); err != nil {
		t.Fatal(err)
	}
	if err := m.Save(filepath.Join(dir, manifest.MultiName)); err != nil {
		t.Fatal(err)
	}
}

func TestPackMultiLocaleFallback(t *testing.T) {
	workspace, buildPath := t.TempDir(), t.TempDir()
	writeSource(t, workspace, "english", "a.txt", []byte("A"))
	writeSource(t, workspace, "english", "b.txt", []byte("B"))
	writeSource(t, workspace, "spanish", "a.txt", []byte("A-es"))
	writeMultiManifest(t, workspace, &manifest.Multi{ByLocale: map[string]*manifest.Build{
		"english": {Entries: map[string]manifest.Entry{
			"a.txt": uncompressed(manifest.Default()),
			"b.txt": uncompressed(manifest.Default()),
		}},
		"spanish": {Entries: map[string]manifest.Entry{
			"a.txt": uncompressed(manifest.Default()),
		}},
	}})

	if err := PackMulti("client", "mp_test", lzhamCfg(t), workspace, buildPath, Options{Threads: 2}); err != nil {
		t.Fatalf("packmulti: %v", err)
	}

	english, err := ParseDirFile(filepath.Join(buildPath, "englishclient_mp_test.bsp.pak000_dir.vpk"))
	if err != nil {
		t.Fatalf("parse english dir: %v", err)
	}
	spanish, err := ParseDirFile(filepath.Join(buildPath, "spanishclient_mp_test.bsp.pak000_dir.vpk"))
	if err != nil {
		t.Fatalf("parse spanish dir: %v", err)
	}

	// both directories reference b.txt, and the spanish record points at the
	// same deduplicated bytes as the english one
	eb := entryNamed(t, english, "b.txt")
	sb := entryNamed(t, spanish, "b.txt")
	if sb.CRC32 != eb.CRC32 {
		t.Errorf("spanish b.txt crc %08X, expected english's %08X", sb.CRC32, eb.CRC32)
	}
	if sb.Chunks[0].Offset != eb.Chunks[0].Offset || sb.Chunks[0].CompressedSize != eb.Chunks[0].CompressedSize {
		t.Errorf("spanish b.txt not deduplicated against english: %+v vs %+v", sb.Chunks[0], eb.Chunks[0])
	}
	if ea, sa := entryNamed(t, english, "a.txt"), entryNamed(t, spanish, "a.txt"); ea.CRC32 == sa.CRC32 {
		t.Errorf("spanish a.txt should differ from english")
	}
	for i := range spanish.Entries {
		if spanish.Entries[i].Index != 0 {
			t.Errorf("multi-locale entries use pack index 0, got %v", spanish.Entries[i].Index)
		}
	}

	// the shared data file holds A, B, and A-es exactly once each
	fi, err := os.Stat(filepath.Join(buildPath, "client_mp_test.bsp.pak000_000.vpk"))
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(len("A") + len("B") + len("A-es")); fi.Size() != want {
		t.Errorf("shared data file is %d bytes, expected %d", fi.Size(), want)
	}

	out := t.TempDir()
	if err := UnpackMulti(english.Path, out, Options{Threads: 2}); err != nil {
		t.Fatalf("unpackmulti: %v", err)
	}

	for name, want := range map[string]string{"a.txt": "A", "b.txt": "B"} {
		got, err := os.ReadFile(filepath.Join(out, "content", "english", name))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("english %s = %q, expected %q", name, got, want)
		}
	}
	got, err := os.ReadFile(filepath.Join(out, "content", "spanish", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "A-es" {
		t.Errorf("spanish a.txt = %q", got)
	}
	// differencing omits files identical to the fallback
	if _, err := os.Stat(filepath.Join(out, "content", "spanish", "b.txt")); !os.IsNotExist(err) {
		t.Errorf("spanish b.txt should be omitted by differencing")
	}

	m, err := manifest.LoadMulti(filepath.Join(out, "manifest", manifest.MultiName))
	if err != nil {
		t.Fatalf("load multi manifest: %v", err)
	}
	for _, locale := range []string{"english", "spanish"} {
		b := m.ByLocale[locale]
		if b == nil || len(b.Entries) != 2 {
			t.Errorf("locale %s: expected a complete 2-entry view, got %+v", locale, b)
		}
	}
}

func TestPackDeltaCommon(t *testing.T) {
	workspace, buildPath := t.TempDir(), t.TempDir()
	writeSource(t, workspace, "english", "scripts/a.txt", []byte("alpha"))
	writeSource(t, workspace, "english", "sound/s.wav", []byte("wavdata"))
	writeSource(t, workspace, "english", "maps/m.bsp", []byte("bspdata"))
	writeSource(t, workspace, "english", "extra.txt", []byte("shared extra"))
	writeSource(t, workspace, "spanish", "scripts/a.txt", []byte("alpha-es"))

	englishEntries := map[string]manifest.Entry{
		"scripts/a.txt": uncompressed(manifest.Default()),
		"sound/s.wav":   uncompressed(manifest.Default()),
		"maps/m.bsp":    uncompressed(manifest.Default()),
		"extra.txt":     uncompressed(manifest.Default()),
	}
	writeBuildManifest(t, workspace, "englishclient_mp_a", &manifest.Build{Entries: englishEntries})
	writeBuildManifest(t, workspace, "spanishclient_mp_a", &manifest.Build{Entries: map[string]manifest.Entry{
		"scripts/a.txt": uncompressed(manifest.Default()),
		"extra.txt":     uncompressed(manifest.Default()),
	}})

	if err := PackDeltaCommon("client", lzhamCfg(t), workspace, buildPath, Options{Threads: 2}); err != nil {
		t.Fatalf("packdeltacommon: %v", err)
	}

	for _, name := range []string{
		"client_mp_delta_common.bsp.pak000_000.vpk",
		"server_mp_delta_common.bsp.pak000_000.vpk",
	} {
		if _, err := os.Stat(filepath.Join(buildPath, name)); err != nil {
			t.Errorf("shared data file %s missing: %v", name, err)
		}
	}

	// text entries route to the server stream, sound to the client stream,
	// and the .bsp is rehomed into mp_common
	engServer, err := ParseDirFile(filepath.Join(buildPath, "englishserver_mp_a.bsp.pak000_dir.vpk"))
	if err != nil {
		t.Fatalf("parse english server dir: %v", err)
	}
	entryNamed(t, engServer, "scripts/a.txt")
	entryNamed(t, engServer, "extra.txt")

	engClient, err := ParseDirFile(filepath.Join(buildPath, "englishclient_mp_a.bsp.pak000_dir.vpk"))
	if err != nil {
		t.Fatalf("parse english client dir: %v", err)
	}
	entryNamed(t, engClient, "sound/s.wav")

	engCommon, err := ParseDirFile(filepath.Join(buildPath, "englishserver_mp_common.bsp.pak000_dir.vpk"))
	if err != nil {
		t.Fatalf("parse english mp_common dir: %v", err)
	}
	bsp := entryNamed(t, engCommon, "maps/m.bsp")

	for _, e := range [][]revpk.EntryBlock{engServer.Entries, engClient.Entries, engCommon.Entries} {
		for i := range e {
			if e[i].Index != revpk.IndexDeltaCommon {
				t.Errorf("delta-common entries use the reserved index, got %v", e[i].Index)
			}
		}
	}
	_ = bsp

	// the spanish dir packs its own a.txt but fills extra.txt from the
	// recorded english entry
	spaServer, err := ParseDirFile(filepath.Join(buildPath, "spanishserver_mp_a.bsp.pak000_dir.vpk"))
	if err != nil {
		t.Fatalf("parse spanish server dir: %v", err)
	}
	sa := entryNamed(t, spaServer, "scripts/a.txt")
	if sa.CRC32 != revpk.Checksum([]byte("alpha-es")) {
		t.Errorf("spanish a.txt should be packed from the spanish source")
	}
	se := entryNamed(t, spaServer, "extra.txt")
	ee := entryNamed(t, engServer, "extra.txt")
	if se.CRC32 != ee.CRC32 || se.Chunks[0].Offset != ee.Chunks[0].Offset {
		t.Errorf("spanish extra.txt should reuse the english record: %+v vs %+v", se, ee)
	}

	// the server stream data file resolves through the reserved index, so the
	// spanish dir unpacks to real bytes
	out := t.TempDir()
	u := &Unpacker{Comp: mustCodec(t)}
	sel := make([]int, len(spaServer.Entries))
	for i := range sel {
		sel[i] = i
	}
	if err := u.unpackEntries(spaServer, sel, out, 1); err != nil {
		t.Fatalf("unpack spanish server dir: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(out, "extra.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("shared extra")) {
		t.Errorf("filled entry unpacked to %q", got)
	}
	got, err = os.ReadFile(filepath.Join(out, "scripts", "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("alpha-es")) {
		t.Errorf("spanish entry unpacked to %q", got)
	}
}
