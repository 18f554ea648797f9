package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/leialabs/leia-realtime/pkg/gateway/apierror"
	"github.com/leialabs/leia-realtime/pkg/gateway/mw"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apiErr, status := apierror.FromError(err, reqID)
	writeJSON(w, status, apierror.Envelope{Error: apiErr})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *apierror.Error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if apiErr != nil && apiErr.RequestID == "" {
		apiErr.RequestID = reqID
	}
	writeJSON(w, status, apierror.Envelope{Error: apiErr})
}
