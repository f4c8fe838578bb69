package device

import (
	"bufio"
	"sort"
	"strconv"
	"strings"

	"github.com/newtron-network/routersync/pkg/snippets"
)

// ObservedInterface is one interface block of the running configuration.
type ObservedInterface struct {
	Name        string
	VLAN        int
	VRF         string
	Address     string // "ip mask"
	Secondaries map[string]bool
	lines       map[string]bool
}

// Observed is the configuration present on a device at the start of a full
// resync, reduced to what create-style operations need to decide whether a
// command is already in effect. It is read-only once parsed.
type Observed struct {
	Device     string
	VRFs       map[string]bool
	VLANs      map[int]string // VLAN -> sub-interface name
	Interfaces map[string]*ObservedInterface
	NATPools   map[string]bool

	// top-level commands verbatim: routes, NAT translations, pools
	global map[string]bool
}

// NewObserved returns an empty observation for device.
func NewObserved(device string) *Observed {
	return &Observed{
		Device:     device,
		VRFs:       make(map[string]bool),
		VLANs:      make(map[int]string),
		Interfaces: make(map[string]*ObservedInterface),
		NATPools:   make(map[string]bool),
		global:     make(map[string]bool),
	}
}

// ParseRunningConfig builds an Observed from "show running-config" output.
// Unknown lines are ignored.
func ParseRunningConfig(device, text string) *Observed {
	obs := NewObserved(device)

	var cur *ObservedInterface
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		raw := strings.TrimRight(sc.Text(), "\r ")
		if raw == "" || strings.HasPrefix(raw, "!") {
			if raw == "!" {
				cur = nil
			}
			continue
		}

		if !strings.HasPrefix(raw, " ") {
			cur = nil
			obs.parseTopLevel(raw, &cur)
			continue
		}

		if cur != nil {
			cur.parseChild(strings.TrimSpace(raw), obs)
		}
	}
	return obs
}

func (o *Observed) parseTopLevel(line string, cur **ObservedInterface) {
	fields := strings.Fields(line)
	switch {
	case strings.HasPrefix(line, "interface ") && len(fields) == 2:
		// A rendered script may open the same interface more than once.
		intf, ok := o.Interfaces[fields[1]]
		if !ok {
			intf = &ObservedInterface{
				Name:        fields[1],
				Secondaries: make(map[string]bool),
				lines:       make(map[string]bool),
			}
			o.Interfaces[intf.Name] = intf
		}
		*cur = intf
	case strings.HasPrefix(line, "vrf definition ") && len(fields) == 3:
		o.VRFs[fields[2]] = true
	case strings.HasPrefix(line, "ip nat pool ") && len(fields) >= 4:
		o.NATPools[fields[3]] = true
		o.global[line] = true
	default:
		o.global[line] = true
	}
}

func (i *ObservedInterface) parseChild(line string, o *Observed) {
	i.lines[line] = true
	fields := strings.Fields(line)
	switch {
	case strings.HasPrefix(line, "encapsulation dot1Q ") && len(fields) >= 3:
		if vlan, err := strconv.Atoi(fields[2]); err == nil {
			i.VLAN = vlan
			o.VLANs[vlan] = i.Name
		}
	case strings.HasPrefix(line, "vrf forwarding ") && len(fields) == 3:
		i.VRF = fields[2]
	case strings.HasPrefix(line, "ip address ") && len(fields) == 5 && fields[4] == "secondary":
		i.Secondaries[fields[2]] = true
	case strings.HasPrefix(line, "ip address ") && len(fields) == 4:
		i.Address = fields[2] + " " + fields[3]
	}
}

// HasVRF reports whether the VRF definition exists.
func (o *Observed) HasVRF(name string) bool {
	return o != nil && o.VRFs[name]
}

// HasSubInterface reports whether the named sub-interface exists and
// encapsulates vlan.
func (o *Observed) HasSubInterface(name string, vlan int) bool {
	if o == nil {
		return false
	}
	i, ok := o.Interfaces[name]
	return ok && i.VLAN == vlan
}

// HasNATPool reports whether the named pool exists.
func (o *Observed) HasNATPool(name string) bool {
	return o != nil && o.NATPools[name]
}

// HasSecondaryIP reports whether intf carries addr as a secondary address.
func (o *Observed) HasSecondaryIP(intf, addr string) bool {
	if o == nil {
		return false
	}
	i, ok := o.Interfaces[intf]
	return ok && i.Secondaries[addr]
}

// HasCommand reports whether a rendered command is already in effect. For
// commands that enter a mode, every leaf line must be present in that
// interface's block; other commands must appear verbatim at top level.
func (o *Observed) HasCommand(cmd string) bool {
	if o == nil {
		return false
	}
	lines := snippets.Lines(cmd)
	if len(lines) == 1 {
		return o.global[cmd]
	}
	head := strings.Fields(lines[0])
	if len(head) != 2 || head[0] != "interface" {
		return false
	}
	intf, ok := o.Interfaces[head[1]]
	if !ok {
		return false
	}
	for _, l := range lines[1:] {
		l = strings.TrimSpace(l)
		// "vrf <name>" is a mode marker in HSRP commands, not a config line.
		if strings.HasPrefix(l, "vrf ") && !strings.HasPrefix(l, "vrf forwarding") {
			continue
		}
		if !intf.lines[l] {
			return false
		}
	}
	return true
}

// Summary returns sorted VRF names and VLAN ids, for logging.
func (o *Observed) Summary() ([]string, []int) {
	var vrfs []string
	for v := range o.VRFs {
		vrfs = append(vrfs, v)
	}
	sort.Strings(vrfs)
	var vlans []int
	for v := range o.VLANs {
		vlans = append(vlans, v)
	}
	sort.Ints(vlans)
	return vrfs, vlans
}
