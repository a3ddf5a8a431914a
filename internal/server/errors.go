package server

import "codeberg.org/mutker/ecoguard/internal/errors"

const (
	ErrServeHTTP   = errors.ErrServeHTTP
	ErrShutdown    = errors.ErrShutdownFailed
	ErrUnknownView = errors.ErrorCode("server_unknown_view")
	ErrRenderPage  = errors.ErrorCode("server_render_page_failed")
	ErrUpgradeWS   = errors.ErrorCode("server_websocket_upgrade_failed")
)

func init() {
	errors.RegisterMessage(ErrUnknownView, "Unknown view")
	errors.RegisterMessage(ErrRenderPage, "Failed to render page")
	errors.RegisterMessage(ErrUpgradeWS, "Websocket upgrade failed")
}
