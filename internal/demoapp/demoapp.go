// Package demoapp provides a minimal Application used by the example
// binary: it echoes the request method, path, and query string as a
// plain-text body.
package demoapp

import (
	"fmt"

	"github.com/greenhttp/greenhttp/gateway"
)

// New returns an Application that writes a one-line summary of the
// request and, for POST/PUT, echoes the request body back verbatim.
func New() gateway.Application {
	return func(env gateway.Env, start gateway.StartResponseFunc) gateway.BodyIter {
		method, _ := env["REQUEST_METHOD"].(string)
		path, _ := env["PATH_INFO"].(string)
		query, _ := env["QUERY_STRING"].(string)

		var body []byte
		if in, ok := env["wsgi.input"].(gateway.InputStream); ok && (method == "POST" || method == "PUT") {
			for {
				chunk, err := in.Read(4096)
				body = append(body, chunk...)
				if err != nil || len(chunk) == 0 {
					break
				}
			}
		}

		summary := fmt.Sprintf("%s %s", method, path)
		if query != "" {
			summary += "?" + query
		}
		summary += "\n"
		if len(body) > 0 {
			summary += string(body) + "\n"
		}

		start("200 OK", []gateway.HeaderField{
			{Name: "Content-Type", Value: "text/plain; charset=utf-8"},
			{Name: "Content-Length", Value: fmt.Sprintf("%d", len(summary))},
		})
		return gateway.SliceBody([]byte(summary))
	}
}
