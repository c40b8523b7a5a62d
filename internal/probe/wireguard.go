package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	constants "vpsdash/config"
)

// WireGuardPeer is one peer line of `wg show <iface> dump`
type WireGuardPeer struct {
	PublicKey       string
	Endpoint        string
	AllowedIPs      string
	LatestHandshake time.Time
	RxBytes         int64
	TxBytes         int64
}

// WireGuardHandshake reports the age of the freshest peer handshake on an interface
type WireGuardHandshake struct {
	name       string
	iface      string
	thresholds Thresholds
	run        CommandRunner
	now        func() time.Time
}

func NewWireGuardHandshake(name, iface string, t Thresholds, run CommandRunner) *WireGuardHandshake {
	if iface == "" {
		iface = constants.DEFAULT_WG_IFACE
	}
	if run == nil {
		run = ExecRunner
	}
	return &WireGuardHandshake{
		name:       name,
		iface:      iface,
		thresholds: t.orDefault(Thresholds{Warn: constants.DEFAULT_HANDSHAKE_WARN, Crit: constants.DEFAULT_HANDSHAKE_CRIT}),
		run:        run,
		now:        time.Now,
	}
}

func (p *WireGuardHandshake) Name() string { return p.name }

func (p *WireGuardHandshake) Sample(ctx context.Context) Result {
	out, err := p.run(ctx, "wg", "show", p.iface, "dump")
	if err != nil {
		return p.unitState(ctx, err)
	}

	peers, err := ParseWireGuardDump(string(out))
	if err != nil {
		return Unknown(p.name, err)
	}
	if len(peers) == 0 {
		return Unknown(p.name, fmt.Errorf("%s has no peers", p.iface))
	}

	var freshest time.Time
	for _, peer := range peers {
		if peer.LatestHandshake.After(freshest) {
			freshest = peer.LatestHandshake
		}
	}
	if freshest.IsZero() {
		return NewResult(p.name, StatusCrit, "never", fmt.Sprintf("%s: no peer has completed a handshake", p.iface))
	}

	age := p.now().Sub(freshest).Seconds()
	if age < 0 {
		age = 0
	}
	msg := fmt.Sprintf("%s: %d peers, last handshake %.0fs ago", p.iface, len(peers), age)
	return NewResult(p.name, p.thresholds.Evaluate(age), age, msg)
}

// unitState reports the wg-quick unit when the handshake table is not
// readable, which is the usual case without root
func (p *WireGuardHandshake) unitState(ctx context.Context, wgErr error) Result {
	unit := "wg-quick@" + p.iface + ".service"
	state, up, err := SystemdSource{Run: p.run}.State(ctx, unit)
	if err != nil {
		return Unknown(p.name, fmt.Errorf("wg show %s: %v; systemctl: %w", p.iface, wgErr, err))
	}

	msg := fmt.Sprintf("%s is %s, handshakes unavailable", unit, state)
	if !up {
		return NewResult(p.name, StatusCrit, state, msg)
	}
	return NewResult(p.name, StatusOK, state, msg)
}

// ParseWireGuardDump parses `wg show <iface> dump`. The first line describes
// the interface; every following line is a tab-separated peer record.
func ParseWireGuardDump(out string) ([]WireGuardPeer, error) {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, errors.New("empty wg dump")
	}

	peers := make([]WireGuardPeer, 0, len(lines)-1)
	for _, l := range lines[1:] {
		f := strings.Split(l, "\t")
		if len(f) < 7 {
			continue
		}
		peer := WireGuardPeer{PublicKey: f[0]}
		if f[2] != "(none)" {
			peer.Endpoint = f[2]
		}
		if f[3] != "(none)" {
			peer.AllowedIPs = f[3]
		}
		if hs, err := strconv.ParseInt(f[4], 10, 64); err == nil && hs > 0 {
			peer.LatestHandshake = time.Unix(hs, 0)
		}
		peer.RxBytes, _ = strconv.ParseInt(f[5], 10, 64)
		peer.TxBytes, _ = strconv.ParseInt(f[6], 10, 64)
		peers = append(peers, peer)
	}
	return peers, nil
}
