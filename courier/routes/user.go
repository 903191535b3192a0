package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"courier/courier/controllers"
	"courier/courier/middlewares"
	"courier/courier/sources/identity"
	"courier/courier/types"

	"github.com/go-chi/chi/v5"
)

func UserRoutes(ctrl *controllers.UserController, tokens *identity.Tokens) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.AuthMiddleware(tokens))

	status := func(err error) int {
		if errors.Is(err, controllers.ErrUserNotFound) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	}

	r.Get("/me", handleJSON(func(r *http.Request) (any, int, error) {
		p := middlewares.PrincipalFrom(r.Context())
		user, err := ctrl.GetUser(r.Context(), p.ID)
		if err != nil {
			return nil, status(err), err
		}
		return user, http.StatusOK, nil
	}))

	r.Put("/me", handleJSON(func(r *http.Request) (any, int, error) {
		p := middlewares.PrincipalFrom(r.Context())
		var req types.UpdateProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, http.StatusBadRequest, err
		}
		user, err := ctrl.UpdateProfile(r.Context(), p.ID, req)
		if err != nil {
			return nil, status(err), err
		}
		return user, http.StatusOK, nil
	}))

	return r
}
