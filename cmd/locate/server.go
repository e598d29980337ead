package main

import (
	"net/http"

	"github.com/banshee-data/hypocenter/internal/api"
)

func runServer(server *api.Server, addr string) error {
	return http.ListenAndServe(addr, server.ServeMux())
}
