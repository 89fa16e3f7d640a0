// Package ident derives the ephemeral token batch submissions are
// rate-limited under. The token is a pure function of coarse connection
// attributes and the current hour, so it rotates every hour and no stored
// artifact can map it back to a client or tie two windows together.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"
)

// RotationWindow is how long a derived token stays stable. Hour-aligned
// buckets, not sliding: every token dies at the top of the hour.
const RotationWindow = time.Hour

// CountryResolver narrows an IP to an ISO country code. Optional; a nil
// resolver leaves the country attribute empty.
type CountryResolver interface {
	CountryCode(ip string) (string, error)
}

// Deriver computes ephemeral client tokens from request metadata.
type Deriver struct {
	countries CountryResolver
}

func NewDeriver(countries CountryResolver) *Deriver {
	return &Deriver{countries: countries}
}

// Token derives the rate-limiting token for a request at time now.
//
// Inputs are deliberately coarse: the network prefix rather than the full
// address, the declared agent string, an optional country code, and the
// hour bucket. Hashing the hour in makes cross-window correlation impossible
// even for the service itself.
func (d *Deriver) Token(r *http.Request, now time.Time) string {
	ip := clientIP(r)
	country := ""
	if d.countries != nil {
		if code, err := d.countries.CountryCode(ip); err == nil {
			country = code
		}
	}
	return derive(networkPrefix(ip), country, r.UserAgent(), now)
}

func derive(prefix, country, agent string, now time.Time) string {
	bucket := now.UTC().Truncate(RotationWindow)
	h := sha256.New()
	h.Write([]byte(prefix))
	h.Write([]byte{0})
	h.Write([]byte(country))
	h.Write([]byte{0})
	h.Write([]byte(agent))
	h.Write([]byte{0})
	h.Write([]byte(bucket.Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// networkPrefix truncates an address to /24 for IPv4 and /48 for IPv6, the
// coarse attribute the token is built from. Unparseable input is used as-is
// so garbage still buckets consistently.
func networkPrefix(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			candidate := strings.TrimSpace(part)
			if candidate == "" {
				continue
			}
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
