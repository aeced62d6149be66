package heos

import (
	"context"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/luma/maestro/protocol"
)

// Group is a set of players rendering the same stream.
type Group struct {
	Name    string
	GID     int64
	Players []GroupPlayer
}

// GroupPlayer is one member of a group, with its role (leader or member).
type GroupPlayer struct {
	Name string
	PID  int64
	Role string
}

// GetGroups lists the device's current player groups.
func (c *Conn) GetGroups(ctx context.Context) ([]Group, error) {
	env, err := c.Submit(ctx, protocol.GetGroups, nil)
	if err != nil {
		return nil, err
	}

	var groups []Group
	env.PayloadResult().ForEach(func(_, value gjson.Result) bool {
		group := Group{
			Name: value.Get("name").String(),
			GID:  value.Get("gid").Int(),
		}

		value.Get("players").ForEach(func(_, player gjson.Result) bool {
			group.Players = append(group.Players, GroupPlayer{
				Name: player.Get("name").String(),
				PID:  player.Get("pid").Int(),
				Role: player.Get("role").String(),
			})
			return true
		})

		groups = append(groups, group)
		return true
	})

	return groups, nil
}

// SetGroup groups the given players together. The first pid becomes the
// group leader. Passing a single pid ungroups it.
func (c *Conn) SetGroup(ctx context.Context, pids ...int64) error {
	formatted := make([]string, 0, len(pids))
	for _, pid := range pids {
		formatted = append(formatted, strconv.FormatInt(pid, 10))
	}

	_, err := c.Submit(ctx, protocol.SetGroup, map[string]string{
		"pid": strings.Join(formatted, ","),
	})
	return err
}

// GetGroupVolume returns the group's volume level (0-100).
func (c *Conn) GetGroupVolume(ctx context.Context, gid int64) (int64, error) {
	env, err := c.Submit(ctx, protocol.GetGroupVolume, gidParams(gid))
	if err != nil {
		return 0, err
	}

	return messageInt(env, "level")
}

// SetGroupVolume sets the group's volume level (0-100).
func (c *Conn) SetGroupVolume(ctx context.Context, gid int64, level int64) error {
	params := gidParams(gid)
	params["level"] = strconv.FormatInt(level, 10)

	_, err := c.Submit(ctx, protocol.SetGroupVolume, params)
	return err
}

// GetGroupMute reports whether the group is muted.
func (c *Conn) GetGroupMute(ctx context.Context, gid int64) (bool, error) {
	env, err := c.Submit(ctx, protocol.GetGroupMute, gidParams(gid))
	if err != nil {
		return false, err
	}

	return env.Message["state"] == "on", nil
}

// SetGroupMute mutes or unmutes the group.
func (c *Conn) SetGroupMute(ctx context.Context, gid int64, mute bool) error {
	params := gidParams(gid)
	params["state"] = onOff(mute)

	_, err := c.Submit(ctx, protocol.SetGroupMute, params)
	return err
}

func gidParams(gid int64) map[string]string {
	return map[string]string{"gid": strconv.FormatInt(gid, 10)}
}
