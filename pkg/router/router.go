package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/cors"
	"github.com/sevendrop/backend/pkg/errorx"
	"github.com/sevendrop/backend/pkg/xcontext"
)

type HandlerFunc[Request, Response any] func(ctx context.Context, req *Request) (*Response, error)

// MiddlewareFunc runs before the handler. A returned error aborts the request
// and is written as the response.
type MiddlewareFunc func(ctx context.Context) (context.Context, error)

// CloserFunc runs after the response was written. xcontext.Error returns the
// error of the request, if any.
type CloserFunc func(ctx context.Context)

type Router struct {
	ctx     context.Context
	mux     chi.Router
	befores []MiddlewareFunc
	closers []CloserFunc
}

// New creates a router whose handlers see the values (configs, logger, db)
// of ctx merged into the request context.
func New(ctx context.Context) *Router {
	return &Router{ctx: ctx, mux: chi.NewRouter()}
}

func (r *Router) Before(middleware MiddlewareFunc) {
	r.befores = append(r.befores, middleware)
}

func (r *Router) AddCloser(closer CloserFunc) {
	r.closers = append(r.closers, closer)
}

// Branch returns a router sharing the same routes with a copy of the current
// middlewares, so middlewares added to the branch do not leak to the parent.
func (r *Router) Branch() *Router {
	return &Router{
		ctx:     r.ctx,
		mux:     r.mux,
		befores: append([]MiddlewareFunc{}, r.befores...),
		closers: append([]CloserFunc{}, r.closers...),
	}
}

func (r *Router) Handle(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
}

func (r *Router) Handler(allowedOrigins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(r.mux)
}

func GET[Request, Response any](r *Router, pattern string, handler HandlerFunc[Request, Response]) {
	r.mux.Get(pattern, wrapHandler(r, http.MethodGet, handler))
}

func POST[Request, Response any](r *Router, pattern string, handler HandlerFunc[Request, Response]) {
	r.mux.Post(pattern, wrapHandler(r, http.MethodPost, handler))
}

func wrapHandler[Request, Response any](
	r *Router,
	method string,
	handler HandlerFunc[Request, Response],
) http.HandlerFunc {
	return func(w http.ResponseWriter, httpReq *http.Request) {
		ctx := xcontext.Merge(httpReq.Context(), r.ctx)
		ctx = xcontext.WithHTTPRequest(ctx, httpReq)
		ctx = xcontext.WithHTTPWriter(ctx, w)

		var resp *Response
		var err error
		for _, before := range r.befores {
			var newCtx context.Context
			if newCtx, err = before(ctx); err != nil {
				break
			}
			ctx = newCtx
		}

		if err == nil {
			var req Request
			if err = parseRequest(httpReq, method, &req); err != nil {
				xcontext.Logger(ctx).Debugf("Cannot parse request: %v", err)
				err = errorx.New(errorx.BadRequest, "Invalid request")
			} else {
				resp, err = handler(ctx, &req)
			}
		}

		if err != nil {
			ctx = xcontext.WithError(ctx, err)
			writeError(ctx, w, err)
		} else {
			writeResponse(ctx, w, resp)
		}

		for _, closer := range r.closers {
			closer(ctx)
		}
	}
}

func parseRequest(r *http.Request, method string, req any) error {
	switch method {
	case http.MethodGet:
		params := map[string]any{}
		for key, values := range r.URL.Query() {
			if len(values) == 1 {
				params[key] = values[0]
			} else {
				params[key] = values
			}
		}

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			WeaklyTypedInput: true,
			Result:           req,
		})
		if err != nil {
			return err
		}

		return decoder.Decode(params)

	case http.MethodPost:
		err := json.NewDecoder(r.Body).Decode(req)
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	return errors.New("unsupported method")
}
