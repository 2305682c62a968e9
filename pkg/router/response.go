package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/xcontext"
)

type response struct {
	Code  int64  `json:"code"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func writeResponse(ctx context.Context, w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, response{Code: 0, Data: data}); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot write the response: %v", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	resp := response{
		Code:  int64(errorx.Unknown.Code),
		Error: errorx.Unknown.Message,
	}

	var errx errorx.Error
	if errors.As(err, &errx) {
		resp.Code = int64(errx.Code)
		resp.Error = errx.Message
	} else {
		xcontext.Logger(ctx).Errorf("Unexpected error: %v", err)
	}

	if err := WriteJSON(w, errorx.Code(resp.Code).HTTPStatus(), resp); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot write the response: %v", err)
	}
}

func WriteJSON(w http.ResponseWriter, status int, resp any) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}
