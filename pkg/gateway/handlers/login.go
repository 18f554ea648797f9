package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/leialabs/leia-realtime/pkg/gateway/apierror"
	"github.com/leialabs/leia-realtime/pkg/gateway/auth"
)

// LoginHandler exchanges the admin password for a bearer token.
type LoginHandler struct {
	Verifier *auth.Verifier
}

func (h LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Verifier == nil {
		writeAPIError(w, r, http.StatusForbidden, &apierror.Error{
			Type:    apierror.ErrPermission,
			Message: "admin access is not configured",
		})
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, &apierror.Error{
			Type:    apierror.ErrInvalidRequest,
			Message: "invalid JSON body",
		})
		return
	}

	token, err := h.Verifier.Login(req.Password)
	if err != nil {
		writeAPIError(w, r, http.StatusUnauthorized, &apierror.Error{
			Type:    apierror.ErrAuthentication,
			Message: "invalid password",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
