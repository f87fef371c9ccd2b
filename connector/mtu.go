// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package connector

import "net"

// minimumMTU mirrors the resolved REDESIGN-FLAGS decision [SPEC_FULL.md §9
// "MTU fallback"]: 1280 (the IPv6 minimum), never the historical 200 debug
// artifact the original flagged as an open question.
const minimumMTU = 1280

// discoverMTU queries the MTU of the network interface local addr is bound
// to, falling back to minimumMTU when the interface cannot be resolved
// [spec.md §4.3 "Start"]. golang.org/x/net/ipv4 does not expose
// per-destination PMTU discovery over a connectionless UDP socket without
// platform-specific socket options; matching an interface's MTU by local
// address, then falling back, is the closest portable approximation and
// mirrors the spirit of the spec's own fallback rule.
func discoverMTU(local *net.UDPAddr) int {
	if local == nil || local.IP == nil {
		return minimumMTU
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return minimumMTU
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ipNet.IP.Equal(local.IP) {
				if iface.MTU > 0 {
					return iface.MTU
				}
				return minimumMTU
			}
		}
	}
	return minimumMTU
}
