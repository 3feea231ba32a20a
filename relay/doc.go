// Package relay forwards normalized pushup submissions to the configured
// webhook and classifies its answer.
//
// The upstream is usually a Google Apps Script web app. By default the
// payload travels as query parameters on a GET (Apps Script answers POSTs
// with a redirect that drops the body), with a "v" cache-busting parameter.
// Calls are bounded by a timeout and never retried; the browser resubmits.
//
// A call succeeds when the upstream answers 2xx and, if its body is a JSON
// object carrying "ok", that field is true. Everything else comes back as an
// *Error whose Kind is the client-facing error code.
package relay
