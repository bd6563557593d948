package web

import (
	_ "embed"
	"net/http"
)

//go:embed index.html
var indexHTML []byte

func (w *Web) handleIndex(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.Write(indexHTML)
}
