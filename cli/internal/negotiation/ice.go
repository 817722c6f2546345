package negotiation

import (
	"net"
	"strings"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warproom/cli/internal/config"
)

// iceConfiguration builds the pion configuration from STUN/TURN settings.
// ICE is restricted to relay candidates when asked to, or when the host looks
// like it sits behind a VPN or carrier-grade NAT where direct pairs rarely
// succeed.
func iceConfiguration(cfg *config.Config) pion.Configuration {
	var servers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, pion.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turn != nil && (cfg.ForceRelay || restrictiveNetwork(interfaceAddrs())) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
		BundlePolicy:       pion.BundlePolicyMaxBundle,
		RTCPMuxPolicy:      pion.RTCPMuxPolicyRequire,
	}
}

type ifaceAddrs struct {
	name string
	ips  []net.IP
}

func interfaceAddrs() []ifaceAddrs {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []ifaceAddrs
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		entry := ifaceAddrs{name: iface.Name}
		addrs, _ := iface.Addrs()
		for _, addr := range addrs {
			switch v := addr.(type) {
			case *net.IPNet:
				entry.ips = append(entry.ips, v.IP)
			case *net.IPAddr:
				entry.ips = append(entry.ips, v.IP)
			}
		}
		out = append(out, entry)
	}
	return out
}

var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// restrictiveNetwork reports tunnel-style interfaces (VPN, WireGuard, WARP)
// or addresses in the 100.64.0.0/10 shared range.
func restrictiveNetwork(ifaces []ifaceAddrs) bool {
	for _, iface := range ifaces {
		name := strings.ToLower(iface.name)
		for _, marker := range []string{"tun", "tap", "wg", "ppp", "warp"} {
			if strings.Contains(name, marker) {
				return true
			}
		}
		for _, ip := range iface.ips {
			if cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}
