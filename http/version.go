package http

import (
	"net/http"
)

type versionResponse struct {
	Version string `json:"version"`
}

func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, versionResponse{Version: version})
	}
}
