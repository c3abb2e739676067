// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package metrics exposes Prometheus counters and histograms for the
// handshake, session, message-dispatch, and store layers, all
// registered against a package-local Registry rather than the global
// default one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shadowwire"

// Registry is the collector registry every metric in this package
// registers against. It is package-local rather than
// prometheus.DefaultRegisterer so tests can spin up repeated worker
// instances without "duplicate metrics collector registration"
// panics across packages.
var Registry = prometheus.NewRegistry()

// Handler returns the HTTP handler that serves this package's metrics
// in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer runs a standalone metrics HTTP server on addr, serving
// Handler() at /metrics. It blocks until the server exits.
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
