// Package api hosts the edge HTTP server and its middleware. Notable routes:
//   - GET /healthz and /readyz for probes; readiness pings remote dedup stores.
//   - GET /metrics for Prometheus scraping.
//   - /notify (and its configured aliases) for visitor notifications, all methods.
//   - GET /dev?command=&token= for the developer command shell.
//
// Every other path redirects to the portfolio site.
package api
