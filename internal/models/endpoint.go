package models

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidEndpoint is returned when an endpoint URL is not an absolute URI.
var ErrInvalidEndpoint = errors.New("invalid endpoint URL")

// ServiceEndpoint is a resolved downstream target: an absolute URL paired
// with the verb the request will be forwarded with. Instances are immutable;
// derivation methods return new values.
type ServiceEndpoint struct {
	url    string
	method Method
}

// NewServiceEndpoint validates rawURL as an absolute URI and returns the
// endpoint value.
func NewServiceEndpoint(rawURL string, method Method) (ServiceEndpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ServiceEndpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return ServiceEndpoint{}, fmt.Errorf("%w: %q is not absolute", ErrInvalidEndpoint, rawURL)
	}
	return ServiceEndpoint{url: rawURL, method: method}, nil
}

// URL returns the endpoint's absolute URL.
func (e ServiceEndpoint) URL() string {
	return e.url
}

// Method returns the verb the endpoint will be called with.
func (e ServiceEndpoint) Method() Method {
	return e.method
}

// WithQueryParams returns a new endpoint whose URL carries the given
// parameters, URL-encoded and appended with "?" or "&" depending on whether
// the URL already has a query component. Parameters are appended in sorted
// key order so derived URLs are deterministic.
func (e ServiceEndpoint) WithQueryParams(params map[string]string) ServiceEndpoint {
	if len(params) == 0 {
		return e
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, params[k])
	}

	sep := "?"
	if strings.Contains(e.url, "?") {
		sep = "&"
	}

	return ServiceEndpoint{
		url:    e.url + sep + values.Encode(),
		method: e.method,
	}
}
