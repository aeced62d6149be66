package protocol

const (
	// Scheme is the literal token that prefixes every request line.
	Scheme = "heos"

	// Port is the well-known TCP port HEOS devices listen on.
	Port = 1255

	// EventPrefix marks a response as an unsolicited notification rather
	// than a reply to a request.
	EventPrefix = "event/"
)

type Command string

// System commands.
const (
	RegisterForChangeEvents Command = "system/register_for_change_events"
	HeartBeat               Command = "system/heart_beat"
	SignIn                  Command = "system/sign_in"
	SignOut                 Command = "system/sign_out"
	Reboot                  Command = "system/reboot"
)

// Player commands.
const (
	GetPlayers          Command = "player/get_players"
	GetPlayerInfo       Command = "player/get_player_info"
	GetPlayState        Command = "player/get_play_state"
	SetPlayState        Command = "player/set_play_state"
	GetVolume           Command = "player/get_volume"
	SetVolume           Command = "player/set_volume"
	VolumeUp            Command = "player/volume_up"
	VolumeDown          Command = "player/volume_down"
	GetMute             Command = "player/get_mute"
	SetMute             Command = "player/set_mute"
	ToggleMute          Command = "player/toggle_mute"
	GetNowPlayingMedia  Command = "player/get_now_playing_media"
	PlayNext            Command = "player/play_next"
	PlayPrevious        Command = "player/play_previous"
	GetQueue            Command = "player/get_queue"
	ClearQueue          Command = "player/clear_queue"
	PlayQueueItem       Command = "player/play_queue"
	GetPlayMode         Command = "player/get_play_mode"
	SetPlayMode         Command = "player/set_play_mode"
)

// Group commands.
const (
	GetGroups      Command = "group/get_groups"
	SetGroup       Command = "group/set_group"
	GetGroupVolume Command = "group/get_volume"
	SetGroupVolume Command = "group/set_volume"
	GetGroupMute   Command = "group/get_mute"
	SetGroupMute   Command = "group/set_mute"
)

// Browse commands.
const (
	GetMusicSources Command = "browse/get_music_sources"
	Browse          Command = "browse/browse"
)

// Result values carried in the envelope's `result` field.
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
)
