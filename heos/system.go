package heos

import (
	"context"

	"github.com/luma/maestro/protocol"
)

// RegisterForChangeEvents enables or disables unsolicited change events for
// this connection. Connect already registers with enable=on as part of its
// handshake.
func (c *Conn) RegisterForChangeEvents(ctx context.Context, enable bool) error {
	_, err := c.Submit(ctx, protocol.RegisterForChangeEvents, map[string]string{
		"enable": onOff(enable),
	})
	return err
}

// HeartBeat issues a no-op command the device acknowledges.
func (c *Conn) HeartBeat(ctx context.Context) error {
	_, err := c.Submit(ctx, protocol.HeartBeat, nil)
	return err
}

// SignIn authenticates the device against the vendor's streaming account.
func (c *Conn) SignIn(ctx context.Context, username, password string) error {
	_, err := c.Submit(ctx, protocol.SignIn, map[string]string{
		"un": username,
		"pw": password,
	})
	return err
}

// SignOut clears the device's streaming account session.
func (c *Conn) SignOut(ctx context.Context) error {
	_, err := c.Submit(ctx, protocol.SignOut, nil)
	return err
}

// Reboot restarts the device. The socket will drop shortly afterwards.
func (c *Conn) Reboot(ctx context.Context) error {
	_, err := c.Submit(ctx, protocol.Reboot, nil)
	return err
}
