package revpk

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Ext is the file extension of a VPK.
const Ext = ".vpk"

// KnownLocales is the closed set of locale prefixes, in prefix-stripping
// order. The empty locale maps to DefaultLocale on naming.
var KnownLocales = []string{
	"english", "french", "german", "italian", "spanish", "russian",
	"polish", "japanese", "korean", "tchinese", "portuguese",
}

// DefaultLocale is the locale used when none is given, and the fallback for
// multi-locale operations.
const DefaultLocale = "english"

var packFileRe = regexp.MustCompile(`pak000_([0-9]{3})`)

// Pair generates the data and directory file names for a VPK:
// <target>_<level>.bsp.pak000_<patch>.vpk and
// <locale><target>_<level>.bsp.pak000_dir.vpk.
func Pair(locale, target, level string, patch int) (packName, dirName string) {
	if locale == "" {
		locale = DefaultLocale
	}
	if target == "" {
		target = "server"
	}
	if level == "" {
		level = "map_unknown"
	}
	packName = fmt.Sprintf("%s_%s.bsp.pak000_%03d%s", target, level, patch, Ext)
	dirName = fmt.Sprintf("%s%s_%s.bsp.pak000_dir%s", locale, target, level, Ext)
	return
}

// DeltaCommonPackName returns the name of the multi-locale shared data file
// for a target.
func DeltaCommonPackName(target string) string {
	return target + "_mp_delta_common.bsp.pak000_000" + Ext
}

// StripLocalePrefix removes a leading known-locale prefix from a directory
// file name, returning the bare base name and the locale found ("" if none).
func StripLocalePrefix(name string) (base, locale string) {
	for _, loc := range KnownLocales {
		if strings.HasPrefix(name, loc) {
			return name[len(loc):], loc
		}
	}
	return name, ""
}

// PackFileName resolves the data file name referenced by a directory file for
// a given pack index: the reserved delta-common index maps to the shared data
// file, anything else substitutes pak000_NNN into the locale-stripped
// directory name.
func PackFileName(dirName string, idx PackIndex) (string, error) {
	stripped, _ := StripLocalePrefix(filepath.Base(dirName))
	if idx == IndexDeltaCommon {
		target, _, ok := strings.Cut(stripped, "_")
		if !ok {
			return "", fmt.Errorf("pack file name for %q: no target prefix", dirName)
		}
		return DeltaCommonPackName(target), nil
	}
	if !strings.Contains(stripped, "pak000_dir") {
		return "", fmt.Errorf("pack file name for %q: not a pak000_dir file", dirName)
	}
	return strings.Replace(stripped, "pak000_dir", fmt.Sprintf("pak000_%03d", uint16(idx)), 1), nil
}

// DirBaseName returns the manifest base name for a directory file, e.g.
// "englishclient_mp_rr_box" for englishclient_mp_rr_box.bsp.pak000_dir.vpk.
// Unrecognized names are returned unchanged.
func DirBaseName(dirName string) string {
	base := filepath.Base(dirName)
	if i := strings.Index(base, ".bsp.pak000_dir"); i != -1 {
		return base[:i]
	}
	return base
}

// SplitBaseName splits a bare base name like "client_mp_rr_box" (or a
// locale-prefixed one) into its locale, target, and level parts.
func SplitBaseName(base string) (locale, target, level string, ok bool) {
	base, locale = StripLocalePrefix(base)
	if locale == "" {
		locale = DefaultLocale
	}
	target, level, ok = strings.Cut(base, "_")
	return
}

// SanitizeDirPath substitutes pak000_dir for a pak000_NNN suffix so a data
// file path can be used to locate its directory file. Paths that already name
// a directory file are returned unchanged.
func SanitizeDirPath(path string) string {
	dir, base := filepath.Split(path)
	if strings.Contains(base, "pak000_dir") {
		return path
	}
	if !packFileRe.MatchString(base) {
		return path
	}
	return dir + packFileRe.ReplaceAllLiteralString(base, "pak000_dir")
}
