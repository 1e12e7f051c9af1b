package site

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var siteFS embed.FS

// FS exposes the embedded site rooted at static/ as an http.FileSystem.
func FS() http.FileSystem {
	sub, err := fs.Sub(siteFS, "static")
	if err != nil {
		return http.FS(siteFS)
	}
	return http.FS(sub)
}
