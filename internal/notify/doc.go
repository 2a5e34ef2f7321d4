// Package notify implements the visitor-notification endpoint.
//
// A request is validated (method, optional shared token), reduced to a
// VisitorKey, checked against a DedupCache and, when the visitor is new,
// turned into a MarkdownV2 alert that is handed to a Relay. The cache write,
// the relay call and the optional visit event are scheduled on a Background
// runner so the HTTP response never waits on them.
package notify
