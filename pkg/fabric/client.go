package fabric

import (
	"github.com/netfabric/netfabric/pkg/shell"
)

// Command binaries used by the backends. All are resolved through PATH at
// execution time.
const (
	ipBin      = "ip"
	ovsBin     = "ovs-vsctl"
	tcBin      = "tc"
	ethtoolBin = "ethtool"
)

// GreTapOptions carries the optional modifiers of a GRE tap device. Unset
// fields are omitted from the issued command; when several are set they are
// emitted in the fixed order local, ttl, key.
type GreTapOptions struct {
	// Local pins the tunnel to a local source address.
	Local string
	// TTL sets the time-to-live of encapsulated packets.
	TTL *int
	// Key multiplexes several independent tunnels between the same pair of
	// hosts.
	Key *int
}

// NetClient is the capability contract of a provisioning backend. Both the
// kernel-bridge and the Open vSwitch backends expose the same operations;
// callers pick one at construction time and keep it for the whole
// provisioning session. Mixing backends for one bridge is not supported.
//
// Operations are a thin façade over kernel truth: nothing is cached, every
// query re-reads host state, and no operation is retried or rolled back
// internally. A multi-step operation that fails partway leaves the earlier
// steps' effects in place for the caller to retry or tear down.
//
// Operations on disjoint devices are safe to run concurrently; operations on
// the same kernel object must be serialized by the caller.
type NetClient interface {
	// SetHostname sets the network hostname.
	SetHostname(name string) error
	// CreateRoute adds a route through a device.
	CreateRoute(route, device string) error
	// DeviceUp brings a device administratively up.
	DeviceUp(device string) error
	// DeviceDown brings a device administratively down.
	DeviceDown(device string) error
	// DeviceName renames a device.
	DeviceName(device, name string) error
	// DeviceShow returns the kernel's description of a device.
	DeviceShow(device string) (string, error)
	// GetMAC returns the device MAC address as raw text read from the
	// kernel pseudo-file; callers trim and parse.
	GetMAC(device string) (string, error)
	// GetIfindex returns the device ifindex as raw text read from the
	// kernel pseudo-file; callers trim and parse.
	GetIfindex(device string) (string, error)
	// DeviceNS moves a device into another network namespace. After the
	// move the device is no longer addressable here under its old name.
	DeviceNS(device, namespace string) error
	// DeviceFlush removes all IPv6 addresses from a device. A device that
	// does not exist counts as success.
	DeviceFlush(device string) error
	// DeviceMAC sets the device MAC address.
	DeviceMAC(device, mac string) error
	// DeleteDevice deletes a device.
	DeleteDevice(device string) error
	// DeleteTC removes the root queueing discipline from a device. The
	// backend reports an error when no qdisc is attached; see
	// Session.RemoveShaping for the absent-is-success interpretation.
	DeleteTC(device string) error
	// ChecksumsOff disables hardware checksum offload on both the receive
	// and transmit paths of a device.
	ChecksumsOff(device string) error
	// CreateAddress adds an address in CIDR form to a device. A non-empty
	// broadcast selects the broadcast form of the command. Adding the same
	// address twice is not guaranteed idempotent.
	CreateAddress(device, address, broadcast string) error
	// DeleteAddress removes an address from a device.
	DeleteAddress(device, address string) error
	// CreateVeth creates a veth pair. Deleting either end removes both.
	CreateVeth(name, peer string) error
	// CreateGreTap creates a GRE tap device addressed to a remote endpoint.
	CreateGreTap(device, remote string, opts GreTapOptions) error
	// CreateBridge creates a bridge, disables STP and related learning
	// behavior, and brings it up last.
	CreateBridge(name string) error
	// DeleteBridge brings a bridge down and deletes it.
	DeleteBridge(name string) error
	// CreateInterface attaches a device to a bridge and brings the device
	// up.
	CreateInterface(bridge, device string) error
	// DeleteInterface detaches a device from a bridge. The device is left
	// in its current administrative state.
	DeleteInterface(bridge, device string) error
	// ExistingBridges reports whether any bridge of this backend kind on
	// the host carries an identity token owned by the node. The check is
	// advisory: it does not block creation, and check-then-create is racy
	// unless the caller serializes it.
	ExistingBridges(nodeID string) (bool, error)
	// ListBridges returns the names of bridges of this backend kind whose
	// identity token is owned by the node.
	ListBridges(nodeID string) ([]string, error)
	// DisableMACLearning makes a bridge flood all traffic instead of
	// learning MAC-to-port mappings.
	DisableMACLearning(name string) error
}

// New selects the provisioning backend: the Open vSwitch client when useOvs
// is set, the kernel-bridge client otherwise. The choice is fixed for the
// lifetime of the returned client.
func New(useOvs bool, runner shell.Runner) NetClient {
	if useOvs {
		return NewOvsClient(runner)
	}
	return NewLinuxClient(runner)
}
