// Package channel implements the UDP protocol between the weather server and
// its consumers. Requests are short text commands; responses are msgpack
// snapshots (see the wxdata codec) or the literal termination marker.
package channel

import (
	"fmt"
	"strconv"
	"strings"
)

// Request commands. Queries start with '?', control messages with '!'.
const (
	cmdPing       = "!ping"
	cmdShutdown   = "!shutdown"
	cmdReload     = "!reload"
	cmdResetMetar = "!resetMetar"
)

type RequestKind int

const (
	KindPing RequestKind = iota
	KindPosition
	KindStation
	KindShutdown
	KindReload
	KindResetMetar
)

// Request is one parsed client command.
type Request struct {
	Kind RequestKind

	// Position query.
	Lat, Lon float64

	// Station query.
	ICAO string
}

// ParseRequest parses one datagram's text. Anything unrecognized is an
// error; the server drops such datagrams silently.
func ParseRequest(msg string) (Request, error) {
	msg = strings.TrimSpace(msg)

	switch msg {
	case cmdPing:
		return Request{Kind: KindPing}, nil
	case cmdShutdown:
		return Request{Kind: KindShutdown}, nil
	case cmdReload:
		return Request{Kind: KindReload}, nil
	case cmdResetMetar:
		return Request{Kind: KindResetMetar}, nil
	}

	if !strings.HasPrefix(msg, "?") || len(msg) < 2 {
		return Request{}, fmt.Errorf("unrecognized command %q", msg)
	}
	query := msg[1:]

	if lat, lon, ok := parsePosition(query); ok {
		return Request{Kind: KindPosition, Lat: lat, Lon: lon}, nil
	}

	if icao := strings.ToUpper(query); isICAO(icao) {
		return Request{Kind: KindStation, ICAO: icao}, nil
	}

	return Request{}, fmt.Errorf("malformed query %q", msg)
}

// PositionQuery formats a position query message.
func PositionQuery(lat, lon float64) string {
	return fmt.Sprintf("?%.2f|%.2f", lat, lon)
}

// StationQuery formats a station query message.
func StationQuery(icao string) string {
	return "?" + strings.ToUpper(strings.TrimSpace(icao))
}

func parsePosition(q string) (lat, lon float64, ok bool) {
	parts := strings.SplitN(q, "|", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

func isICAO(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
