// internal/api/request.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fobos-uav/crsf-bridge/internal/command"
)

// commandRequest is the union of every command body shape.
type commandRequest struct {
	Channel     int    `json:"channel"`
	Value       int    `json:"value"`
	ChannelsStr string `json:"channelsStr"`
	Channels    []int  `json:"channels"`
	Mode        string `json:"mode"`
}

// parseCommandRequest validates one /api/command/<name> body and returns
// the parsed command. Range checking is delegated to the command grammar so
// the file and HTTP ingresses cannot drift apart.
func parseCommandRequest(name string, body []byte) (command.Command, error) {
	var req commandRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return command.Command{}, errors.New("invalid JSON format")
		}
	}

	switch name {
	case "setChannel":
		return command.Parse(fmt.Sprintf("setChannel %d %d", req.Channel, req.Value))

	case "setChannels":
		line := req.ChannelsStr
		if line == "" && len(req.Channels) > 0 {
			line = channelsLine(req.Channels)
		}
		if line == "" {
			return command.Command{}, errors.New("missing channelsStr or channels")
		}
		cmd, err := command.Parse(line)
		if err != nil {
			return command.Command{}, err
		}
		if cmd.Kind != command.KindSetChannels {
			return command.Command{}, errors.New("channelsStr must be a setChannels command")
		}
		return cmd, nil

	case "sendChannels":
		return command.Command{Kind: command.KindSendChannels}, nil

	case "setMode":
		return command.Parse("setMode " + req.Mode)
	}

	return command.Command{}, fmt.Errorf("unknown command %q", name)
}

// channelsLine translates a positional value array into the line grammar:
// element 0 drives channel 1 and so on.
func channelsLine(values []int) string {
	var sb strings.Builder
	sb.WriteString("setChannels")
	for i, v := range values {
		fmt.Fprintf(&sb, " %d=%d", i+1, v)
	}
	return sb.String()
}

// commandLine renders a parsed command back into the line grammar, used by
// the gateway to forward a normalized body.
func commandLine(cmd command.Command) string {
	switch cmd.Kind {
	case command.KindSetChannel:
		return fmt.Sprintf("setChannel %d %d", cmd.Channel, cmd.Value)
	case command.KindSetChannels:
		chs := make([]int, 0, len(cmd.Channels))
		for ch := range cmd.Channels {
			chs = append(chs, ch)
		}
		sort.Ints(chs)
		var sb strings.Builder
		sb.WriteString("setChannels")
		for _, ch := range chs {
			fmt.Fprintf(&sb, " %d=%d", ch, cmd.Channels[ch])
		}
		return sb.String()
	case command.KindSendChannels:
		return "sendChannels"
	case command.KindSetMode:
		return "setMode " + cmd.Mode
	}
	return ""
}
