// Package router resolves inbound (path, method) pairs to downstream
// service endpoints using a table of route patterns.
package router

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edulms/api-gateway/internal/config"
	"github.com/edulms/api-gateway/internal/models"
)

// Routing errors.
var (
	// ErrRouteNotFound indicates no route pattern matches the request.
	ErrRouteNotFound = errors.New("no matching route")

	// ErrServiceUnavailable indicates the matched service is marked down.
	ErrServiceUnavailable = errors.New("service marked unavailable")
)

// Route is one compiled route table entry.
type Route struct {
	Pattern     string
	Method      models.Method
	Target      string
	CacheTTL    time.Duration
	QueryParams map[string]string

	host     string
	segments []segment
	literals int
}

type segment struct {
	literal string
	param   string // non-empty for {name} wildcard segments
}

// Resolution is the outcome of a successful route lookup.
type Resolution struct {
	Endpoint models.ServiceEndpoint
	CacheTTL time.Duration
	Params   map[string]string
}

// Router matches request paths against the route table. Matching order is
// deterministic: routes with more literal segments are tried first, longer
// patterns next, and ties fall back to configuration order. The first match
// wins, so a literal route always shadows an overlapping wildcard route.
type Router struct {
	routes []*Route

	mu   sync.RWMutex
	down map[string]struct{} // downstream hosts marked unavailable
}

// New compiles the route table. Every entry's method must be a valid verb
// and its target an absolute URL template.
func New(entries []config.RouteEntry) (*Router, error) {
	routes := make([]*Route, 0, len(entries))
	for i, e := range entries {
		method, err := models.ParseMethod(e.Method)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, e.Path, err)
		}

		target, err := url.Parse(e.Target)
		if err != nil || !target.IsAbs() || target.Host == "" {
			return nil, fmt.Errorf("route %d (%s): target %q is not an absolute URL", i, e.Path, e.Target)
		}

		r := &Route{
			Pattern:     e.Path,
			Method:      method,
			Target:      e.Target,
			CacheTTL:    e.CacheTTL,
			QueryParams: e.QueryParams,
			host:        target.Host,
		}
		for _, s := range splitPath(e.Path) {
			if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") && len(s) > 2 {
				r.segments = append(r.segments, segment{param: s[1 : len(s)-1]})
			} else {
				r.segments = append(r.segments, segment{literal: s})
				r.literals++
			}
		}
		routes = append(routes, r)
	}

	// Stable sort keeps configuration order as the final tie-break.
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].literals != routes[j].literals {
			return routes[i].literals > routes[j].literals
		}
		return len(routes[i].segments) > len(routes[j].segments)
	})

	return &Router{
		routes: routes,
		down:   make(map[string]struct{}),
	}, nil
}

// Resolve maps (path, method) to a downstream endpoint. It returns
// ErrRouteNotFound when no pattern matches and ErrServiceUnavailable when
// the matched service's host is marked down.
func (rt *Router) Resolve(path string, method models.Method) (Resolution, error) {
	reqSegments := splitPath(path)

	for _, r := range rt.routes {
		if r.Method != method {
			continue
		}
		params, ok := match(r.segments, reqSegments)
		if !ok {
			continue
		}

		if rt.isDown(r.host) {
			return Resolution{}, fmt.Errorf("%w: %s", ErrServiceUnavailable, r.host)
		}

		target := r.Target
		for name, value := range params {
			target = strings.ReplaceAll(target, "{"+name+"}", value)
		}

		endpoint, err := models.NewServiceEndpoint(target, method)
		if err != nil {
			return Resolution{}, err
		}
		if len(r.QueryParams) > 0 {
			endpoint = endpoint.WithQueryParams(r.QueryParams)
		}
		return Resolution{Endpoint: endpoint, CacheTTL: r.CacheTTL, Params: params}, nil
	}

	return Resolution{}, fmt.Errorf("%w: %s %s", ErrRouteNotFound, method, path)
}

// SetHealth marks a downstream host as available or not. Resolving a route
// to a down host fails with ErrServiceUnavailable until the host is marked
// back up. It reports whether the host appears in the route table at all.
func (rt *Router) SetHealth(host string, healthy bool) bool {
	known := false
	for _, r := range rt.routes {
		if r.host == host {
			known = true
			break
		}
	}
	if !known {
		return false
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if healthy {
		delete(rt.down, host)
	} else {
		rt.down[host] = struct{}{}
	}
	return true
}

// Hosts returns every distinct downstream host in the route table and
// whether it is currently considered healthy.
func (rt *Router) Hosts() map[string]bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	hosts := make(map[string]bool)
	for _, r := range rt.routes {
		_, down := rt.down[r.host]
		hosts[r.host] = !down
	}
	return hosts
}

func (rt *Router) isDown(host string) bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	_, down := rt.down[host]
	return down
}

func match(pattern []segment, req []string) (map[string]string, bool) {
	if len(pattern) != len(req) {
		return nil, false
	}
	var params map[string]string
	for i, seg := range pattern {
		if seg.param != "" {
			if req[i] == "" {
				return nil, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg.param] = req[i]
			continue
		}
		if seg.literal != req[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
