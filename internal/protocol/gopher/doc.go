// Package gopher implements the per-connection Gopher request handler.
//
// # Request Flow
//
// A connection carries exactly one request and exactly one response:
//
//   - Selector Parser (selector.go): reads the request line, decodes it and
//     normalises the selector. Tab-carrying (Gopher+) selectors are rejected here.
//   - Path Resolver (resolve.go): maps the selector onto the document root and
//     applies the public-access policy (existence, no symlinks, world-readable bit,
//     gophermap present for directories).
//   - Gophermap Renderer (gophermap.go): turns a gophermap file into well-formed
//     4-field menu entries.
//   - Response Writer (response.go): streams file bytes, or writes menu text
//     followed by the ".\r\n" terminator.
//
// Handler (handler.go) wires the stages together. It holds an immutable
// ServerConfig and keeps no per-connection state, so a single Handler serves
// every connection concurrently.
//
// # Chroot Mode
//
// In chroot mode the process root has already been narrowed to the document
// root by the bootstrap code before the first connection is accepted. The
// handler then interprets selectors as absolute paths below Root (normally "/")
// and refuses any selector containing "..".
package gopher
