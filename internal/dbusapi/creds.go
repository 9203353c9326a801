package dbusapi

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/sweeney/devicestatus/internal/cooperate"
)

// BusCredentials asks the bus daemon for the uid and pid behind a unique name.
// The uid is used as the caller's token id.
type BusCredentials struct {
	conn *dbus.Conn
}

// NewBusCredentials uses conn's bus daemon for lookups.
func NewBusCredentials(conn *dbus.Conn) *BusCredentials {
	return &BusCredentials{conn: conn}
}

// Caller implements Credentials.
func (b *BusCredentials) Caller(sender string) (cooperate.Caller, error) {
	obj := b.conn.BusObject()

	var uid uint32
	if err := obj.Call("org.freedesktop.DBus.GetConnectionUnixUser", 0, sender).Store(&uid); err != nil {
		return cooperate.Caller{}, fmt.Errorf("get uid of %s: %w", sender, err)
	}
	var pid uint32
	if err := obj.Call("org.freedesktop.DBus.GetConnectionUnixProcessID", 0, sender).Store(&pid); err != nil {
		return cooperate.Caller{}, fmt.Errorf("get pid of %s: %w", sender, err)
	}
	return cooperate.Caller{TokenID: uid, Pid: int32(pid)}, nil
}
