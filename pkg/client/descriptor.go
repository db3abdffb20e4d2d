package client

import "net/http"

// Descriptor describes a single backend request. Build one with NewQuery
// or NewRequest; the With* methods return modified copies, so a built
// descriptor can be shared between goroutines.
type Descriptor struct {
	method    string
	route     string
	document  string
	operation string
	variables map[string]any
	headers   map[string]string
	body      any
}

// NewQuery builds a descriptor for a query document POSTed to the
// configured query path. Variables may be nil.
func NewQuery(document string, variables map[string]any) Descriptor {
	d := Descriptor{
		method:   http.MethodPost,
		document: document,
	}
	if len(variables) > 0 {
		d.variables = make(map[string]any, len(variables))
		for k, v := range variables {
			d.variables[k] = v
		}
	}
	return d
}

// NewRequest builds a descriptor for a plain route relative to the base
// URL. The body is JSON-encoded when non-nil. An empty method means GET.
func NewRequest(method, route string, body any) Descriptor {
	if method == "" {
		method = http.MethodGet
	}
	return Descriptor{
		method: method,
		route:  route,
		body:   body,
	}
}

// WithOperation names the operation for logs and metrics. Query
// descriptors also send the name as operationName.
func (d Descriptor) WithOperation(name string) Descriptor {
	d.operation = name
	return d
}

// WithHeader attaches an extra request header. Headers managed by the
// dispatcher win on conflict.
func (d Descriptor) WithHeader(key, value string) Descriptor {
	headers := make(map[string]string, len(d.headers)+1)
	for k, v := range d.headers {
		headers[k] = v
	}
	headers[key] = value
	d.headers = headers
	return d
}

// IsQuery reports whether the descriptor carries a query document.
func (d Descriptor) IsQuery() bool {
	return d.document != ""
}

// Operation returns the label used for logging and metrics: the explicit
// operation name when set, the route otherwise.
func (d Descriptor) Operation() string {
	if d.operation != "" {
		return d.operation
	}
	if d.route != "" {
		return d.route
	}
	return "query"
}
