package control

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"

	"go.klb.dev/tkharness/internal/message"
)

const maxBodyBytes = 1 << 20

type route struct {
	method  string
	pattern string
	op      message.Op
}

// routes maps the HTTP/JSON surface onto control ops. Path parameters and
// query values fill the request; POST bodies are a JSON message.Request.
var routes = []route{
	{http.MethodGet, "/v1/ping", message.OpPing},
	{http.MethodGet, "/v1/status", message.OpStatus},
	{http.MethodGet, "/v1/channels/{channel}/formats", message.OpFormats},
	{http.MethodGet, "/v1/channels/{channel}/data", message.OpResolve},
	{http.MethodDelete, "/v1/channels/{channel}", message.OpRelease},
	{http.MethodPost, "/v1/drag/negotiate", message.OpNegotiate},
	{http.MethodPost, "/v1/drag/drop", message.OpDrop},
	{http.MethodPost, "/v1/drag/cancel", message.OpCancel},
	{http.MethodPost, "/v1/drag/begin", message.OpBegin},
	{http.MethodPost, "/v1/filter/offer", message.OpOffer},
}

func newGatewayMux(h Handler) (*gwruntime.ServeMux, error) {
	mux := gwruntime.NewServeMux()
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, gatewayHandler(h, rt.op)); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return mux, nil
}

func gatewayHandler(h Handler, op message.Op) gwruntime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		req := &message.Request{}
		if r.Method == http.MethodPost {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err == nil && len(body) > 0 {
				err = json.Unmarshal(body, req)
			}
			if err != nil {
				writeJSON(w, http.StatusBadRequest, &message.Response{
					Op: op, Error: "decode body: " + err.Error(), Code: CodeBadRequest,
				})
				return
			}
		}
		req.Op = op
		if ch, ok := params["channel"]; ok {
			req.Channel = ch
		}
		if f := r.URL.Query().Get("format"); f != "" {
			req.Format = f
		}

		resp := h.Handle(r.Context(), req)
		code := http.StatusOK
		if resp.Code != "" {
			code = gwruntime.HTTPStatusFromCode(grpcCode(resp.Code))
		}
		writeJSON(w, code, resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
