package router

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	ec "github.com/evoronina/konspekt/pkgs/errors"
	"github.com/evoronina/konspekt/pkgs/utils"
)

func fireErrResp(w http.ResponseWriter, r *http.Request, logger zerolog.Logger,
	msg string, err error) {
	e, ok := err.(*ec.Error)
	e = utils.IfElse(ok, e, ec.ErrInternal.Clone())

	logger.Error().
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Int("http_status_code", e.HttpStatusCode).
		Int("internal_status_code", e.InternalStatusCode).
		Strs("details", e.Details).
		Err(e.Unwrap()).
		Msg(msg)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.HttpStatusCode)
	e.MarshalAndWriteTo(w)
}

func fireOkResp(w http.ResponseWriter, r *http.Request, logger zerolog.Logger,
	data json.RawMessage) {
	logger.Info().
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Str("remote_addr", r.RemoteAddr).
		Int("data_length", len(data)).
		Msg("success")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
