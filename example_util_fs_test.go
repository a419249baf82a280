package docshell_test

import (
	"testing/fstest"
)

// staticFS builds an in-memory fs.FS from template paths and their contents.
// Normally you'd use something like embed.FS or os.DirFS instead.
func staticFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, contents := range files {
		fsys[name] = &fstest.MapFile{
			Data: []byte(contents),
			Mode: 0o400,
		}
	}
	return fsys
}
