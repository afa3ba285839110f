package fabric

import (
	"strings"

	"github.com/netfabric/netfabric/pkg/shell"
)

// OvsClient provisions Open vSwitch bridges. Device-level operations are
// shared with the kernel-bridge client; only the bridge fabric itself goes
// through ovs-vsctl.
type OvsClient struct {
	*LinuxClient
}

// NewOvsClient creates an Open vSwitch client on top of a command runner.
func NewOvsClient(runner shell.Runner) *OvsClient {
	return &OvsClient{LinuxClient: NewLinuxClient(runner)}
}

// CreateBridge creates an OVS bridge with STP disabled and brings it up
// last.
func (c *OvsClient) CreateBridge(name string) error {
	if _, err := c.run.Run(ovsBin, "add-br", name); err != nil {
		return err
	}
	if _, err := c.run.Run(ovsBin, "set", "bridge", name, "stp_enable=false"); err != nil {
		return err
	}
	if _, err := c.run.Run(ovsBin, "set", "bridge", name, "other_config:stp-max-age=6"); err != nil {
		return err
	}
	if _, err := c.run.Run(ovsBin, "set", "bridge", name, "other_config:stp-forward-delay=4"); err != nil {
		return err
	}
	return c.DeviceUp(name)
}

// DeleteBridge brings an OVS bridge down, then deletes it.
func (c *OvsClient) DeleteBridge(name string) error {
	if err := c.DeviceDown(name); err != nil {
		return err
	}
	_, err := c.run.Run(ovsBin, "del-br", name)
	return err
}

// CreateInterface adds a device as a port of an OVS bridge and brings the
// device up.
func (c *OvsClient) CreateInterface(bridge, device string) error {
	if _, err := c.run.Run(ovsBin, "add-port", bridge, device); err != nil {
		return err
	}
	return c.DeviceUp(device)
}

// DeleteInterface removes a device from an OVS bridge. The device keeps its
// administrative state.
func (c *OvsClient) DeleteInterface(bridge, device string) error {
	_, err := c.run.Run(ovsBin, "del-port", bridge, device)
	return err
}

// ExistingBridges reports whether the node owns any OVS bridge on the host.
func (c *OvsClient) ExistingBridges(nodeID string) (bool, error) {
	names, err := c.ListBridges(nodeID)
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ListBridges returns the OVS bridges whose identity token is owned by the
// node.
func (c *OvsClient) ListBridges(nodeID string) ([]string, error) {
	output, err := c.run.Run(ovsBin, "list-br")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if MatchesNode(name, nodeID) {
			names = append(names, name)
		}
	}
	return names, nil
}

// DisableMACLearning zeroes the MAC aging time of an OVS bridge so it
// floods instead of learning.
func (c *OvsClient) DisableMACLearning(name string) error {
	_, err := c.run.Run(ovsBin, "set", "bridge", name, "other_config:mac-aging-time=0")
	return err
}
