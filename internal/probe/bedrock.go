package probe

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
	"strings"
	"time"
)

// raknetMagic is the offline-message marker every unconnected RakNet packet carries
var raknetMagic = []byte{0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe, 0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78}

const (
	raknetUnconnectedPing = 0x01
	raknetUnconnectedPong = 0x1c
)

var errNotPong = errors.New("reply is not an unconnected pong")

// BedrockInfo is what a Bedrock server advertises in its pong
type BedrockInfo struct {
	MOTD       string
	Version    string
	Players    int
	MaxPlayers int
}

// BedrockPing checks a Minecraft Bedrock server with an unconnected RakNet ping
type BedrockPing struct {
	name string
	addr string
}

func NewBedrockPing(name, host string, port int) *BedrockPing {
	return &BedrockPing{name: name, addr: net.JoinHostPort(host, strconv.Itoa(port))}
}

func (p *BedrockPing) Name() string { return p.name }

func (p *BedrockPing) Sample(ctx context.Context) Result {
	info, err := p.ping(ctx)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			r := NewResult(p.name, StatusCrit, "offline", fmt.Sprintf("no pong from %s", p.addr))
			r.Error = err.Error()
			return r
		}
		return Unknown(p.name, err)
	}

	msg := fmt.Sprintf("%s (%s) %d/%d players", info.MOTD, info.Version, info.Players, info.MaxPlayers)
	return NewResult(p.name, StatusOK, float64(info.Players), msg)
}

func (p *BedrockPing) ping(ctx context.Context) (BedrockInfo, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", p.addr)
	if err != nil {
		return BedrockInfo{}, err
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return BedrockInfo{}, err
	}

	if _, err := conn.Write(buildPing(time.Now())); err != nil {
		return BedrockInfo{}, err
	}

	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return BedrockInfo{}, err
	}
	return ParsePong(buf[:n])
}

func buildPing(now time.Time) []byte {
	pkt := make([]byte, 0, 33)
	pkt = append(pkt, raknetUnconnectedPing)
	pkt = binary.BigEndian.AppendUint64(pkt, uint64(now.UnixMilli()))
	pkt = append(pkt, raknetMagic...)
	pkt = binary.BigEndian.AppendUint64(pkt, rand.Uint64())
	return pkt
}

// ParsePong decodes the server ID string of an unconnected pong:
// "MCPE;MOTD;Protocol;Version;Online;Max;ServerID;..."
func ParsePong(data []byte) (BedrockInfo, error) {
	if len(data) == 0 || data[0] != raknetUnconnectedPong {
		return BedrockInfo{}, errNotPong
	}

	info := BedrockInfo{MOTD: "Minecraft Bedrock", Version: "Bedrock"}
	idx := bytes.Index(data, raknetMagic)
	if idx == -1 {
		return info, nil
	}

	// A 2-byte length prefix sits between the magic and the ID string.
	sid := data[idx+len(raknetMagic):]
	if len(sid) >= 2 {
		sid = sid[2:]
	}
	parts := strings.Split(strings.Trim(string(sid), "\x00"), ";")

	if len(parts) > 1 && parts[1] != "" {
		info.MOTD = parts[1]
	}
	if len(parts) > 3 && parts[3] != "" {
		info.Version = parts[3]
	}
	if len(parts) > 4 {
		info.Players, _ = strconv.Atoi(parts[4])
	}
	if len(parts) > 5 {
		info.MaxPlayers, _ = strconv.Atoi(parts[5])
	}
	return info, nil
}
