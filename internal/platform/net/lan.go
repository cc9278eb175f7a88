// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"errors"
	"net"
)

// ErrNoLANAddress is returned when no interface carries a usable IPv4 address.
var ErrNoLANAddress = errors.New("no LAN address found")

// LANAddress returns the first non-loopback IPv4 address of an interface
// that is up, preferring private ranges.
func LANAddress() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var addrs []net.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		a, err := iface.Addrs()
		if err != nil {
			continue
		}
		addrs = append(addrs, a...)
	}
	return selectLANAddress(addrs)
}

func selectLANAddress(addrs []net.Addr) (net.IP, error) {
	var fallback net.IP
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		ip = ip.To4()
		if ip == nil || isUnusable(ip) {
			continue
		}
		if ip.IsPrivate() {
			return ip, nil
		}
		if fallback == nil {
			fallback = ip
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoLANAddress
}

func isUnusable(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsMulticast()
}
