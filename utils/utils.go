package utils

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

const timeFormat = "2006/01/02 15:04:05"

// AccessCheck checks whether the file or directory exists
func AccessCheck(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("Not found %s or permision denied", err)
	}
	return nil
}

// ParseIPPort parse IPv4:Port format string, the IP is invalid if parse failed
func ParseIPPort(ipPort string) (netip.Addr, uint16) {
	idx := strings.LastIndex(ipPort, ":")
	if idx <= 0 {
		return netip.Addr{}, 0
	}

	ip, err := netip.ParseAddr(ipPort[:idx])
	if err != nil {
		return netip.Addr{}, 0
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return netip.Addr{}, 0
	}

	port, err := strconv.Atoi(ipPort[idx+1:])
	if err != nil || port <= 0 || port > 65535 {
		return netip.Addr{}, 0
	}

	return ip, uint16(port)
}

// Uint32Len returns bytes length in uint32 type
func Uint32Len(data []byte) uint32 {
	return uint32(len(data))
}

// TimeToString returns a textual representation of the time
func TimeToString(t time.Time) string {
	return t.Format(timeFormat)
}
