package filters

import "regexp"

// ArchiveSuffixes are packed or compressed payloads.
var ArchiveSuffixes = []string{
	".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz", ".tbz2", ".tar.xz", ".txz", ".tar.zst",
	".gz", ".bz2", ".xz", ".zst", ".lz", ".lz4", ".lzma", ".z",
	".zip", ".7z", ".rar", ".cpio", ".deb", ".rpm", ".udeb",
}

// ImageSuffixes are pictures and vector graphics. Disk images (qcow2, raw, ...)
// are blobs and deliberately absent.
var ImageSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".icns", ".cur",
	".svg", ".svgz", ".xpm", ".xbm", ".tif", ".tiff", ".webp",
	".pcx", ".ppm", ".pgm", ".pbm", ".pnm", ".tga", ".eps",
}

// DocSuffixes are human documentation formats.
var DocSuffixes = []string{
	".md", ".markdown", ".rst", ".txt", ".adoc", ".asciidoc", ".rtf",
	".pdf", ".ps", ".dvi", ".tex", ".texi", ".texinfo", ".pod", ".doc", ".docx", ".odt",
}

// DocStubFiles are well-known documentation file names without a suffix.
var DocStubFiles = []string{
	"README", "LICENSE", "LICENCE", "COPYING", "COPYRIGHT", "AUTHORS", "CHANGELOG", "ChangeLog",
	"CHANGES", "NEWS", "THANKS", "TODO", "INSTALL", "HISTORY", "CONTRIBUTORS", "NOTICE",
	"copyright", "changelog",
}

// HeaderSuffixes are C/C++ development headers and sources.
var HeaderSuffixes = []string{
	".h", ".hh", ".hpp", ".hxx", ".h++", ".inl",
	".c", ".cc", ".cpp", ".cxx", ".c++",
}

// DocDirs are subtrees that only ever hold documentation.
var DocDirs = []string{
	"/usr/share/doc",
	"/usr/share/man",
	"/usr/share/info",
	"/usr/share/help",
	"/usr/share/gtk-doc",
	"/usr/share/devhelp",
	"/usr/share/lintian",
	"/usr/share/linda",
	"/usr/local/share/doc",
	"/usr/local/share/man",
	"/usr/local/share/info",
}

// LocaleDirs hold one subtree per locale.
var LocaleDirs = []string{
	"/usr/share/locale",
	"/usr/lib/locale",
	"/usr/share/i18n/locales",
	"/usr/share/X11/locale",
	"/usr/local/share/locale",
}

var (
	manPageRe = regexp.MustCompile(`\.([0-9n][a-z0-9]*)(\.(gz|bz2|xz|zst))?$`)
	infoRe    = regexp.MustCompile(`\.info(-[0-9]+)?(\.(gz|bz2|xz|zst))?$`)
	logRe     = regexp.MustCompile(`\.log(\.[0-9]+)?(\.(gz|bz2|xz|zst))?$`)
)
