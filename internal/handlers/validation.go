package handlers

import (
	"context"
	"net"
	"net/url"
	"strings"

	vigilerrors "vigil/pkg/errors"
)

// Resolver looks up the addresses of a host.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// TargetValidator gates scan targets: they must be http(s) URLs with a host
// and, unless private targets are allowed, must not point at internal
// addresses.
type TargetValidator struct {
	AllowPrivate bool
	Resolver     Resolver
}

func NewTargetValidator(allowPrivate bool) *TargetValidator {
	return &TargetValidator{AllowPrivate: allowPrivate, Resolver: net.DefaultResolver}
}

func (v *TargetValidator) Validate(ctx context.Context, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return vigilerrors.NewValidationError("target", "is required")
	}

	u, err := url.Parse(target)
	if err != nil {
		return vigilerrors.NewValidationError("target", "is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return vigilerrors.NewValidationError("target", "must use http or https")
	}
	host := u.Hostname()
	if host == "" {
		return vigilerrors.NewValidationError("target", "must include a host")
	}

	if v.AllowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isInternal(ip) {
			return vigilerrors.NewValidationError("target", "points to a private or reserved address")
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return vigilerrors.NewValidationError("target", "points to a private or reserved address")
	}

	addrs, err := v.Resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return vigilerrors.NewValidationError("target", "host cannot be resolved")
	}
	for _, a := range addrs {
		if isInternal(a.IP) {
			return vigilerrors.NewValidationError("target", "resolves to a private or reserved address")
		}
	}
	return nil
}

func isInternal(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}
