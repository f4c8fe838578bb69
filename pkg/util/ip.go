package util

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// ParseIPWithMask parses an IP address with CIDR notation
// Returns the IP, mask length, and any error
func ParseIPWithMask(cidr string) (net.IP, int, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	ones, _ := ipNet.Mask.Size()
	return ip, ones, nil
}

// SplitCIDR returns the address part of a CIDR ("1.103.2.1/24" -> "1.103.2.1").
// A bare address is returned unchanged.
func SplitCIDR(cidr string) string {
	if i := strings.IndexByte(cidr, '/'); i >= 0 {
		return cidr[:i]
	}
	return cidr
}

// Netmask returns the dotted-quad netmask of an IPv4 CIDR
// ("40.0.0.0/24" -> "255.255.255.0").
func Netmask(cidr string) (string, error) {
	_, ipNet, err := parseIPv4Net(cidr)
	if err != nil {
		return "", err
	}
	return net.IP(ipNet.Mask).String(), nil
}

// NetworkAndMask returns the network address and dotted netmask of an IPv4
// CIDR ("40.0.0.7/24" -> "40.0.0.0", "255.255.255.0"). These are the route
// arguments the device expects.
func NetworkAndMask(cidr string) (string, string, error) {
	_, ipNet, err := parseIPv4Net(cidr)
	if err != nil {
		return "", "", err
	}
	return ipNet.IP.String(), net.IP(ipNet.Mask).String(), nil
}

// TopHostAddr returns the highest host address of an IPv4 subnet, i.e. the
// address just below broadcast ("10.0.0.0/24" -> "10.0.0.254").
func TopHostAddr(cidr string) (string, error) {
	_, ipNet, err := parseIPv4Net(cidr)
	if err != nil {
		return "", err
	}
	network := binary.BigEndian.Uint32(ipNet.IP.To4())
	hostmask := ^binary.BigEndian.Uint32(ipNet.Mask)
	if hostmask < 2 {
		return "", fmt.Errorf("subnet %s has no usable host range", cidr)
	}
	return uint32ToIP(network + hostmask - 1).String(), nil
}

// NextAddr returns the address immediately after ip ("1.103.2.1" -> "1.103.2.2").
func NextAddr(ip string) (string, error) {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return "", fmt.Errorf("invalid IPv4 address: %s", ip)
	}
	return uint32ToIP(binary.BigEndian.Uint32(parsed) + 1).String(), nil
}

// CanonicalCIDR returns the network form of a CIDR ("10.0.0.7/24" -> "10.0.0.0/24").
func CanonicalCIDR(cidr string) (string, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return "", fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	return ipNet.String(), nil
}

// CIDRContains reports whether ip falls inside cidr. Unparsable input never
// matches.
func CIDRContains(cidr, ip string) bool {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	addr := net.ParseIP(ip)
	return addr != nil && ipNet.Contains(addr)
}

// IsIPv6 reports whether an address or CIDR is IPv6.
func IsIPv6(addrOrCIDR string) bool {
	ip := net.ParseIP(SplitCIDR(addrOrCIDR))
	return ip != nil && ip.To4() == nil
}

// IsValidIPv4 checks if a string is a valid IPv4 address
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// IsValidCIDR checks if a string is valid CIDR notation (either family)
func IsValidCIDR(cidr string) bool {
	_, _, err := net.ParseCIDR(cidr)
	return err == nil
}

func parseIPv4Net(cidr string) (net.IP, *net.IPNet, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	if ip.To4() == nil {
		return nil, nil, fmt.Errorf("not an IPv4 CIDR: %s", cidr)
	}
	ipNet.IP = ipNet.IP.To4()
	return ip, ipNet, nil
}

func uint32ToIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}
