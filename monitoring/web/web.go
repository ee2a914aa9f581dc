// Package web holds the pages the monitor serves.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

//go:embed dist
var dist embed.FS

// AssetsDirEnv names a directory whose files replace the built-in pages, so
// the pages can be edited without rebuilding.
const AssetsDirEnv = "PAGESIM_MONITOR_ASSETS"

// Assets returns the pages to serve. The directory named by AssetsDirEnv wins
// when it holds an index.html.
func Assets() http.FileSystem {
	if dir := os.Getenv(AssetsDirEnv); dir != "" {
		if _, err := os.Stat(filepath.Join(dir, "index.html")); err == nil {
			logrus.WithField("dir", dir).Info("serving monitor pages from disk")
			return http.Dir(dir)
		}

		logrus.WithField("dir", dir).
			Warn("no index.html in monitor asset directory, using built-in pages")
	}

	pages, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(pages)
}
