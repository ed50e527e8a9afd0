package management

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrUnexpectedResponse is returned when a reply does not have the expected shape.
var ErrUnexpectedResponse = errors.New("minecraft responded in an unexpected way")

// logPrefix matches the level prefix of a server log line, such as
// "[12:00:00] [Server thread/INFO]: " or "[INFO] ". Reply patterns require
// their text right after it, so chat ("<Mallory> Saved the game") never
// satisfies a phase.
const logPrefix = `(?:\[[^\]]*\] )*\[[^\]]*INFO\]:? `

// replyPattern anchors text directly after the log prefix.
func replyPattern(text string) *regexp.Regexp {
	return regexp.MustCompile(`^` + logPrefix + text)
}

var (
	// playerListPattern accepts the console line and the bare RCON reply.
	playerListPattern = regexp.MustCompile(`^(?:` + logPrefix + `)?There are (?P<online>\d+) of a max (?P<max>\d+) players online:(?P<players>.*)`)
	playerPattern     = regexp.MustCompile(`(\w+) \(([^)]+)\)`)
)

// Player is an online player.
type Player struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

// PlayerList is the parsed reply to "list uuids".
type PlayerList struct {
	Online  int      `json:"online"`
	Max     int      `json:"max"`
	Players []Player `json:"players"`
}

// ParsePlayerList parses the reply to "list uuids". The text may carry a log
// prefix. Players is empty, never nil, when nobody is online.
func ParsePlayerList(text string) (*PlayerList, error) {
	m := playerListPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("%w: no player list header", ErrUnexpectedResponse)
	}
	return buildPlayerList(
		m[playerListPattern.SubexpIndex("online")],
		m[playerListPattern.SubexpIndex("max")],
		m[playerListPattern.SubexpIndex("players")],
	)
}

func buildPlayerList(online, maxPlayers, players string) (*PlayerList, error) {
	o, err := strconv.Atoi(online)
	if err != nil {
		return nil, fmt.Errorf("%w: online count: %v", ErrUnexpectedResponse, err)
	}
	mx, err := strconv.Atoi(maxPlayers)
	if err != nil {
		return nil, fmt.Errorf("%w: max count: %v", ErrUnexpectedResponse, err)
	}

	list := &PlayerList{Online: o, Max: mx, Players: []Player{}}
	for _, p := range playerPattern.FindAllStringSubmatch(players, -1) {
		list.Players = append(list.Players, Player{Name: p[1], UUID: p[2]})
	}
	return list, nil
}
