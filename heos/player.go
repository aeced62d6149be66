package heos

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/luma/maestro/protocol"
)

// Play states accepted by SetPlayState.
const (
	PlayStatePlay  = "play"
	PlayStatePause = "pause"
	PlayStateStop  = "stop"
)

// Player describes one playback endpoint attached to the device network.
type Player struct {
	Name         string
	PID          int64
	Model        string
	Version      string
	IP           string
	Network      string
	LineOut      int64
	SerialNumber string
}

// NowPlaying describes the media a player is currently rendering.
type NowPlaying struct {
	Type     string
	Song     string
	Station  string
	Album    string
	Artist   string
	ImageURL string
	AlbumID  string
	MediaID  string
	QueueID  int64
	SourceID int64
}

// GetPlayers lists the playback endpoints known to the device.
func (c *Conn) GetPlayers(ctx context.Context) ([]Player, error) {
	env, err := c.Submit(ctx, protocol.GetPlayers, nil)
	if err != nil {
		return nil, err
	}

	var players []Player
	env.PayloadResult().ForEach(func(_, value gjson.Result) bool {
		players = append(players, playerFromJSON(value))
		return true
	})

	return players, nil
}

// GetPlayerInfo returns a single player's details.
func (c *Conn) GetPlayerInfo(ctx context.Context, pid int64) (Player, error) {
	env, err := c.Submit(ctx, protocol.GetPlayerInfo, pidParams(pid))
	if err != nil {
		return Player{}, err
	}

	return playerFromJSON(env.PayloadResult()), nil
}

// GetPlayState returns the player's transport state (play, pause or stop).
func (c *Conn) GetPlayState(ctx context.Context, pid int64) (string, error) {
	env, err := c.Submit(ctx, protocol.GetPlayState, pidParams(pid))
	if err != nil {
		return "", err
	}

	return env.Message["state"], nil
}

// SetPlayState sets the player's transport state.
func (c *Conn) SetPlayState(ctx context.Context, pid int64, state string) error {
	params := pidParams(pid)
	params["state"] = state

	_, err := c.Submit(ctx, protocol.SetPlayState, params)
	return err
}

// GetVolume returns the player's volume level (0-100).
func (c *Conn) GetVolume(ctx context.Context, pid int64) (int64, error) {
	env, err := c.Submit(ctx, protocol.GetVolume, pidParams(pid))
	if err != nil {
		return 0, err
	}

	return messageInt(env, "level")
}

// SetVolume sets the player's volume level (0-100).
func (c *Conn) SetVolume(ctx context.Context, pid int64, level int64) error {
	params := pidParams(pid)
	params["level"] = strconv.FormatInt(level, 10)

	_, err := c.Submit(ctx, protocol.SetVolume, params)
	return err
}

// VolumeUp raises the volume by step (1-10).
func (c *Conn) VolumeUp(ctx context.Context, pid int64, step int64) error {
	params := pidParams(pid)
	params["step"] = strconv.FormatInt(step, 10)

	_, err := c.Submit(ctx, protocol.VolumeUp, params)
	return err
}

// VolumeDown lowers the volume by step (1-10).
func (c *Conn) VolumeDown(ctx context.Context, pid int64, step int64) error {
	params := pidParams(pid)
	params["step"] = strconv.FormatInt(step, 10)

	_, err := c.Submit(ctx, protocol.VolumeDown, params)
	return err
}

// GetMute reports whether the player is muted.
func (c *Conn) GetMute(ctx context.Context, pid int64) (bool, error) {
	env, err := c.Submit(ctx, protocol.GetMute, pidParams(pid))
	if err != nil {
		return false, err
	}

	return env.Message["state"] == "on", nil
}

// SetMute mutes or unmutes the player.
func (c *Conn) SetMute(ctx context.Context, pid int64, mute bool) error {
	params := pidParams(pid)
	params["state"] = onOff(mute)

	_, err := c.Submit(ctx, protocol.SetMute, params)
	return err
}

// ToggleMute flips the player's mute state.
func (c *Conn) ToggleMute(ctx context.Context, pid int64) error {
	_, err := c.Submit(ctx, protocol.ToggleMute, pidParams(pid))
	return err
}

// GetNowPlayingMedia returns the media the player is currently rendering.
func (c *Conn) GetNowPlayingMedia(ctx context.Context, pid int64) (NowPlaying, error) {
	env, err := c.Submit(ctx, protocol.GetNowPlayingMedia, pidParams(pid))
	if err != nil {
		return NowPlaying{}, err
	}

	payload := env.PayloadResult()

	return NowPlaying{
		Type:     payload.Get("type").String(),
		Song:     payload.Get("song").String(),
		Station:  payload.Get("station").String(),
		Album:    payload.Get("album").String(),
		Artist:   payload.Get("artist").String(),
		ImageURL: payload.Get("image_url").String(),
		AlbumID:  payload.Get("album_id").String(),
		MediaID:  payload.Get("mid").String(),
		QueueID:  payload.Get("qid").Int(),
		SourceID: payload.Get("sid").Int(),
	}, nil
}

// PlayNext skips to the next track in the player's queue.
func (c *Conn) PlayNext(ctx context.Context, pid int64) error {
	_, err := c.Submit(ctx, protocol.PlayNext, pidParams(pid))
	return err
}

// PlayPrevious skips back to the previous track in the player's queue.
func (c *Conn) PlayPrevious(ctx context.Context, pid int64) error {
	_, err := c.Submit(ctx, protocol.PlayPrevious, pidParams(pid))
	return err
}

// ClearQueue empties the player's queue.
func (c *Conn) ClearQueue(ctx context.Context, pid int64) error {
	_, err := c.Submit(ctx, protocol.ClearQueue, pidParams(pid))
	return err
}

func playerFromJSON(value gjson.Result) Player {
	return Player{
		Name:         value.Get("name").String(),
		PID:          value.Get("pid").Int(),
		Model:        value.Get("model").String(),
		Version:      value.Get("version").String(),
		IP:           value.Get("ip").String(),
		Network:      value.Get("network").String(),
		LineOut:      value.Get("lineout").Int(),
		SerialNumber: value.Get("serial").String(),
	}
}

func pidParams(pid int64) map[string]string {
	return map[string]string{"pid": strconv.FormatInt(pid, 10)}
}

func onOff(on bool) string {
	if on {
		return "on"
	}

	return "off"
}

func messageInt(env *protocol.Envelope, key string) (int64, error) {
	value, err := strconv.ParseInt(env.Message[key], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("reply to %s carries no numeric %q: %w", env.Command, key, err)
	}

	return value, nil
}
