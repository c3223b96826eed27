package signal

import "github.com/avdeyev/voicemesh/internal/protocol"

func (ctl *Controller) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypePong})
}
