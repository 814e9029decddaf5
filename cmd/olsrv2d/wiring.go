package main

import (
	"fmt"
	"net"
	"time"

	"github.com/benpicco/olsrv2d/internal/addr"
	"github.com/benpicco/olsrv2d/internal/clock"
	"github.com/benpicco/olsrv2d/internal/config"
	"github.com/benpicco/olsrv2d/internal/hysteresis"
	"github.com/benpicco/olsrv2d/internal/metric"
	"github.com/benpicco/olsrv2d/internal/nhdp"
	"github.com/benpicco/olsrv2d/internal/olsrv2"
)

// toClockDuration converts a config.Duration (a TOML-friendly
// time.Duration alias) to the clock package's millisecond Duration,
// the unit every timer and hold-time field in the protocol packages
// uses.
func toClockDuration(d config.Duration) clock.Duration {
	return clock.MillisFromDuration(time.Duration(d))
}

// metricPluginByName resolves a domain's configured metric plug-in name
// to an implementation. "etx" is the only one this daemon ships; an
// unknown name is a configuration error rather than a silent fallback.
func metricPluginByName(name string) (metric.Plugin, error) {
	switch name {
	case "etx":
		return metric.NewETX(), nil
	default:
		return nil, fmt.Errorf("olsrv2d: unknown metric plug-in %q", name)
	}
}

// buildMetrics resolves every configured domain's metric plug-in into
// the fixed-size array nhdp.NewDatabase expects, and returns the Ext ids
// in declaration order for RIB's per-domain recompute loop.
func buildMetrics(domains []config.DomainConfig) ([nhdp.MaxDomains]metric.Plugin, []uint8, error) {
	var plugins [nhdp.MaxDomains]metric.Plugin
	if len(domains) > nhdp.MaxDomains {
		return plugins, nil, fmt.Errorf("olsrv2d: %d domains configured, max %d", len(domains), nhdp.MaxDomains)
	}
	ids := make([]uint8, 0, len(domains))
	for i, d := range domains {
		p, err := metricPluginByName(d.Metric)
		if err != nil {
			return plugins, nil, err
		}
		plugins[i] = p
		ids = append(ids, d.Ext)
	}
	// Unconfigured domain slots get a default ETX plug-in, so no slot of
	// the returned array is left nil.
	for i := len(domains); i < nhdp.MaxDomains; i++ {
		plugins[i] = metric.NewETX()
	}
	return plugins, ids, nil
}

// hysteresisPlugin is always EWMA: the daemon's config surface has no
// per-node hysteresis selection, unlike the per-domain metric choice.
func hysteresisPlugin() hysteresis.Plugin {
	return hysteresis.NewEWMA()
}

// buildLANs translates the configured LAN lines into olsrv2.LAN values,
// substituting RFC 7181's documented defaults (domain=0, dist=2,
// metric=0) for every omitted field.
func buildLANs(lans []config.LANConfig) ([]olsrv2.LAN, error) {
	out := make([]olsrv2.LAN, 0, len(lans))
	for _, l := range lans {
		_, ipnet, err := net.ParseCIDR(l.Prefix)
		if err != nil {
			return nil, fmt.Errorf("olsrv2d: lan %q: %w", l.Prefix, err)
		}
		ones, _ := ipnet.Mask.Size()
		prefix, err := addr.FromIPPrefix(ipnet.IP, ones)
		if err != nil {
			return nil, fmt.Errorf("olsrv2d: lan %q: %w", l.Prefix, err)
		}

		lan := olsrv2.LAN{
			Prefix: prefix,
			Domain: olsrv2.DefaultLANDomain,
			Dist:   olsrv2.DefaultLANDist,
			Metric: olsrv2.DefaultLANMetric,
		}
		if l.Domain != nil {
			lan.Domain = *l.Domain
		}
		if l.Dist != nil {
			lan.Dist = *l.Dist
		}
		if l.Metric != nil {
			lan.Metric = metric.Cost(*l.Metric)
		}
		out = append(out, lan)
	}
	return out, nil
}

// ifaceAddresses returns every usable unicast address configured on ifi,
// split by family, as addr.Address values.
func ifaceAddresses(ifi *net.Interface) (v4, v6 []addr.Address, err error) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, nil, err
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipn.IP
		if ip.IsLinkLocalUnicast() {
			continue
		}
		parsed, err := addr.FromIP(ip)
		if err != nil {
			continue
		}
		if parsed.Family() == addr.IPv4 {
			v4 = append(v4, parsed)
		} else if parsed.Family() == addr.IPv6 {
			v6 = append(v6, parsed)
		}
	}
	return v4, v6, nil
}

// chooseFamily picks the single address family the whole daemon floods
// and advertises on. RFC 5444's own wire format ties a message's address
// compression to one family per message (every address block shares the
// message's length/family), so rather than juggle two sockets and two
// parallel Reader/Writer pipelines for a mixed deployment, the daemon
// commits to whichever family has a usable address on any configured
// interface, preferring IPv4 when both are present.
func chooseFamily(ifaces []*net.Interface) (v6 bool, err error) {
	sawV6 := false
	for _, ifi := range ifaces {
		v4addrs, v6addrs, aerr := ifaceAddresses(ifi)
		if aerr != nil {
			continue
		}
		if len(v4addrs) > 0 {
			return false, nil
		}
		if len(v6addrs) > 0 {
			sawV6 = true
		}
	}
	if sawV6 {
		return true, nil
	}
	return false, fmt.Errorf("olsrv2d: no configured interface has a usable IPv4 or IPv6 address")
}

// chooseOriginator picks this node's OLSRv2 originator address: the
// numerically lowest address of the chosen family across every
// configured interface, filtered through acl so an excluded (e.g.
// link-local or ULA-scoped) address is never selected.
func chooseOriginator(ifaces []*net.Interface, v6 bool, acl *config.RoutableACL) (addr.Address, error) {
	var best addr.Address
	found := false
	for _, ifi := range ifaces {
		v4addrs, v6addrs, err := ifaceAddresses(ifi)
		if err != nil {
			continue
		}
		cands := v4addrs
		if v6 {
			cands = v6addrs
		}
		for _, a := range cands {
			if acl != nil && !acl.IsRoutable(a) {
				continue
			}
			if !found || a.Less(best) {
				best = a
				found = true
			}
		}
	}
	if !found {
		return addr.Address{}, fmt.Errorf("olsrv2d: no routable originator address found among configured interfaces")
	}
	return best, nil
}
