package signal

import "github.com/dkeye/peercall/internal/domain"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, domain.Pong())
}
