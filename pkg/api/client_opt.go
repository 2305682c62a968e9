package api

import (
	"net/http"
)

type authorizationOpt struct {
	value string
}

// Authorization sets the Authorization header to "<scheme> <token>".
func Authorization(scheme, token string) *authorizationOpt {
	return &authorizationOpt{value: scheme + " " + token}
}

func (opt *authorizationOpt) Do(client defaultClient, req *http.Request) {
	req.Header.Set("Authorization", opt.value)
}
