package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

type handlerFunc = func(http.ResponseWriter, *http.Request)

func recoverMiddleware(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("recover middleware", "error", err, "path", r.URL.Path, "trace", string(debug.Stack()))
				writeHttpError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next(w, r)
	}
}

func authMiddleware(next handlerFunc, token string) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !checkToken(r, token) {
			writeHttpError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r)
	}
}

func get(next handlerFunc) handlerFunc {
	return onlyMethod(http.MethodGet, next)
}

func onlyMethod(method string, next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeHttpError(w, http.StatusMethodNotAllowed, "only "+method+" method is supported")
			return
		}
		next(w, r)
	}
}

func checkToken(req *http.Request, token string) bool {
	bearer, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !ok || len(bearer) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(bearer), []byte(token)) == 1
}

func writeHttpError(resp http.ResponseWriter, status int, comment string) {
	body := struct {
		Error string `json:"error"`
	}{
		Error: comment,
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(status)
	err := json.NewEncoder(resp).Encode(body)
	if err != nil {
		slog.Error("json encode", "error", err)
	}
}
