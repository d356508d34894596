// Package profile resolves user display metadata with a session-lifetime
// cache. Unknown ids are fetched concurrently and merged additively; a
// failed fetch is logged and omitted because profile display is best-effort.
package profile
