package fabric

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/netfabric/netfabric/pkg/shell"
)

// LinuxClient provisions kernel bridges and interfaces through iproute2.
type LinuxClient struct {
	run shell.Runner
}

// NewLinuxClient creates a kernel-bridge client on top of a command runner.
func NewLinuxClient(runner shell.Runner) *LinuxClient {
	return &LinuxClient{run: runner}
}

// SetHostname sets the network hostname.
func (c *LinuxClient) SetHostname(name string) error {
	_, err := c.run.Run("hostname", name)
	return err
}

// CreateRoute adds a route through a device.
func (c *LinuxClient) CreateRoute(route, device string) error {
	_, err := c.run.Run(ipBin, "route", "add", route, "dev", device)
	return err
}

// DeviceUp brings a device up.
func (c *LinuxClient) DeviceUp(device string) error {
	_, err := c.run.Run(ipBin, "link", "set", device, "up")
	return err
}

// DeviceDown brings a device down.
func (c *LinuxClient) DeviceDown(device string) error {
	_, err := c.run.Run(ipBin, "link", "set", device, "down")
	return err
}

// DeviceName renames a device.
func (c *LinuxClient) DeviceName(device, name string) error {
	_, err := c.run.Run(ipBin, "link", "set", device, "name", name)
	return err
}

// DeviceShow returns the kernel's description of a device.
func (c *LinuxClient) DeviceShow(device string) (string, error) {
	return c.run.Run(ipBin, "link", "show", device)
}

// GetMAC reads the device MAC address from /sys.
func (c *LinuxClient) GetMAC(device string) (string, error) {
	return c.run.Run("cat", fmt.Sprintf("/sys/class/net/%s/address", device))
}

// GetIfindex reads the device ifindex from /sys.
func (c *LinuxClient) GetIfindex(device string) (string, error) {
	return c.run.Run("cat", fmt.Sprintf("/sys/class/net/%s/ifindex", device))
}

// DeviceNS moves a device into a network namespace.
func (c *LinuxClient) DeviceNS(device, namespace string) error {
	_, err := c.run.Run(ipBin, "link", "set", device, "netns", namespace)
	return err
}

// DeviceFlush removes all IPv6 addresses from a device. The command is a
// shell conditional so that a missing device counts as success.
func (c *LinuxClient) DeviceFlush(device string) error {
	_, err := c.run.RunShell(fmt.Sprintf(
		"[ -e /sys/class/net/%s ] && %s -6 address flush dev %s || true",
		device, ipBin, device,
	))
	return err
}

// DeviceMAC sets the device MAC address.
func (c *LinuxClient) DeviceMAC(device, mac string) error {
	_, err := c.run.Run(ipBin, "link", "set", "dev", device, "address", mac)
	return err
}

// DeleteDevice deletes a device.
func (c *LinuxClient) DeleteDevice(device string) error {
	_, err := c.run.Run(ipBin, "link", "delete", device)
	return err
}

// DeleteTC removes the root qdisc from a device.
func (c *LinuxClient) DeleteTC(device string) error {
	_, err := c.run.Run(tcBin, "qdisc", "delete", "dev", device, "root")
	return err
}

// ChecksumsOff disables checksum offload on both paths of a device.
func (c *LinuxClient) ChecksumsOff(device string) error {
	_, err := c.run.Run(ethtoolBin, "-K", device, "rx", "off", "tx", "off")
	return err
}

// CreateAddress adds an address to a device, with the broadcast form when a
// broadcast address is given.
func (c *LinuxClient) CreateAddress(device, address, broadcast string) error {
	var err error
	if broadcast != "" {
		_, err = c.run.Run(ipBin, "address", "add", address, "broadcast", broadcast, "dev", device)
	} else {
		_, err = c.run.Run(ipBin, "address", "add", address, "dev", device)
	}
	return err
}

// DeleteAddress removes an address from a device.
func (c *LinuxClient) DeleteAddress(device, address string) error {
	_, err := c.run.Run(ipBin, "address", "delete", address, "dev", device)
	return err
}

// CreateVeth creates a veth pair.
func (c *LinuxClient) CreateVeth(name, peer string) error {
	_, err := c.run.Run(ipBin, "link", "add", "name", name, "type", "veth", "peer", "name", peer)
	return err
}

// CreateGreTap creates a GRE tap device addressed to remote. Optional
// modifiers are appended in the fixed order local, ttl, key.
func (c *LinuxClient) CreateGreTap(device, remote string, opts GreTapOptions) error {
	args := []string{ipBin, "link", "add", device, "type", "gretap", "remote", remote}
	if opts.Local != "" {
		args = append(args, "local", opts.Local)
	}
	if opts.TTL != nil {
		args = append(args, "ttl", strconv.Itoa(*opts.TTL))
	}
	if opts.Key != nil {
		args = append(args, "key", strconv.Itoa(*opts.Key))
	}
	_, err := c.run.Run(args...)
	return err
}

// CreateBridge creates a kernel bridge and brings it up. The bridge must
// exist before its properties can be set, and it is brought up last.
func (c *LinuxClient) CreateBridge(name string) error {
	if _, err := c.run.Run(ipBin, "link", "add", "name", name, "type", "bridge"); err != nil {
		return err
	}
	if _, err := c.run.Run(ipBin, "link", "set", name, "type", "bridge", "stp_state", "0"); err != nil {
		return err
	}
	if _, err := c.run.Run(ipBin, "link", "set", name, "type", "bridge", "forward_delay", "0"); err != nil {
		return err
	}
	if _, err := c.run.Run(ipBin, "link", "set", name, "type", "bridge", "mcast_snooping", "0"); err != nil {
		return err
	}
	return c.DeviceUp(name)
}

// DeleteBridge brings a kernel bridge down, then deletes it, so nothing is
// delivered into the bridge mid-teardown.
func (c *LinuxClient) DeleteBridge(name string) error {
	if err := c.DeviceDown(name); err != nil {
		return err
	}
	_, err := c.run.Run(ipBin, "link", "delete", name, "type", "bridge")
	return err
}

// CreateInterface attaches a device to a kernel bridge and brings it up.
func (c *LinuxClient) CreateInterface(bridge, device string) error {
	if _, err := c.run.Run(ipBin, "link", "set", "dev", device, "master", bridge); err != nil {
		return err
	}
	return c.DeviceUp(device)
}

// DeleteInterface detaches a device from a kernel bridge. The device keeps
// its administrative state.
func (c *LinuxClient) DeleteInterface(bridge, device string) error {
	_, err := c.run.Run(ipBin, "link", "set", "dev", device, "nomaster")
	return err
}

// ExistingBridges reports whether the node owns any kernel bridge on the
// host.
func (c *LinuxClient) ExistingBridges(nodeID string) (bool, error) {
	names, err := c.ListBridges(nodeID)
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ListBridges returns the kernel bridges whose identity token is owned by
// the node.
func (c *LinuxClient) ListBridges(nodeID string) ([]string, error) {
	output, err := c.run.Run(ipBin, "-j", "link", "show", "type", "bridge")
	if err != nil {
		return nil, err
	}
	if output == "" {
		return nil, nil
	}
	var bridges []struct {
		Ifname string `json:"ifname"`
	}
	if err := json.Unmarshal([]byte(output), &bridges); err != nil {
		return nil, fmt.Errorf("failed to parse bridge listing: %w", err)
	}
	var names []string
	for _, bridge := range bridges {
		if MatchesNode(bridge.Ifname, nodeID) {
			names = append(names, bridge.Ifname)
		}
	}
	return names, nil
}

// DisableMACLearning zeroes the address-table ageing time of a kernel
// bridge so it floods instead of learning.
func (c *LinuxClient) DisableMACLearning(name string) error {
	_, err := c.run.Run(ipBin, "link", "set", name, "type", "bridge", "ageing_time", "0")
	return err
}
