package probe

import (
	"context"
	"net"
)

// ValidTarget reports whether target is an IP literal or a resolvable
// hostname. Targets are interpolated into the remote ping command, so
// anything that does not resolve is rejected up front.
func ValidTarget(ctx context.Context, target string) bool {
	if target == "" {
		return false
	}
	if net.ParseIP(target) != nil {
		return true
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, target)
	return err == nil && len(addrs) > 0
}
