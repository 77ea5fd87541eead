package mqttv5

import "errors"

// Engine status values. ErrNeedMoreData is the only one that is not fatal
// for a processing step.
var (
	ErrNeedMoreData       = errors.New("partial packet received, need more data")
	ErrNoMemory           = errors.New("buffer or record table too small")
	ErrBadParameter       = errors.New("bad parameter")
	ErrBadResponse        = errors.New("bad response from server")
	ErrServerRefused      = errors.New("server refused the connection")
	ErrNoDataAvailable    = errors.New("no data available")
	ErrRecvFailed         = errors.New("receive failed")
	ErrSendFailed         = errors.New("send failed")
	ErrKeepAliveTimeout   = errors.New("keep alive timeout")
	ErrServerDisconnected = errors.New("server sent DISCONNECT")
	ErrIllegalState       = errors.New("illegal state")
	ErrStateCollision     = errors.New("packet identifier already in use")
)
