package heos

import (
	"context"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/luma/maestro/protocol"
)

// Source is a music source the device can browse or play from.
type Source struct {
	Name      string
	SID       int64
	Type      string
	ImageURL  string
	Available bool
}

// MediaItem is one entry in a browse listing: a container (album, playlist,
// folder) or a playable track/station.
type MediaItem struct {
	Name        string
	Type        string
	ContainerID string
	MediaID     string
	ImageURL    string
	Container   bool
	Playable    bool
}

// GetMusicSources lists the music sources known to the device.
func (c *Conn) GetMusicSources(ctx context.Context) ([]Source, error) {
	env, err := c.Submit(ctx, protocol.GetMusicSources, nil)
	if err != nil {
		return nil, err
	}

	var sources []Source
	env.PayloadResult().ForEach(func(_, value gjson.Result) bool {
		sources = append(sources, Source{
			Name:      value.Get("name").String(),
			SID:       value.Get("sid").Int(),
			Type:      value.Get("type").String(),
			ImageURL:  value.Get("image_url").String(),
			Available: value.Get("available").String() == "true",
		})
		return true
	})

	return sources, nil
}

// Browse lists the top level of a music source. Pass a container id to
// descend into it.
func (c *Conn) Browse(ctx context.Context, sid int64, cid string) ([]MediaItem, error) {
	params := map[string]string{"sid": strconv.FormatInt(sid, 10)}
	if cid != "" {
		params["cid"] = cid
	}

	env, err := c.Submit(ctx, protocol.Browse, params)
	if err != nil {
		return nil, err
	}

	var items []MediaItem
	env.PayloadResult().ForEach(func(_, value gjson.Result) bool {
		items = append(items, MediaItem{
			Name:        value.Get("name").String(),
			Type:        value.Get("type").String(),
			ContainerID: value.Get("cid").String(),
			MediaID:     value.Get("mid").String(),
			ImageURL:    value.Get("image_url").String(),
			Container:   value.Get("container").String() == "yes",
			Playable:    value.Get("playable").String() == "yes",
		})
		return true
	})

	return items, nil
}
