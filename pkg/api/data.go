package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

type Parameter map[string]string

func (p Parameter) Encode() string {
	var parameters []string
	for key, value := range p {
		parameters = append(parameters, key+"="+url.QueryEscape(value))
	}
	sort.Strings(parameters)
	return strings.Join(parameters, "&")
}

type JSON map[string]any

func (j JSON) ToReader() (io.Reader, string, error) {
	return Object(j).ToReader()
}

type object struct {
	v any
}

// Object wraps any JSON-marshalable value as a request body.
func Object(v any) Body {
	return object{v: v}
}

func (o object) ToReader() (io.Reader, string, error) {
	b, err := json.Marshal(o.v)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewBuffer(b), "application/json", nil
}

type Response struct {
	Code    int
	Header  http.Header
	RawBody []byte
}

func (r *Response) OK() bool {
	return r.Code >= 200 && r.Code < 300
}

func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.RawBody, v)
}
