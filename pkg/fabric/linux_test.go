package fabric

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int {
	return &i
}

func TestLinuxBridgeLifecycle(t *testing.T) {
	runner := newFakeRunner()
	client := NewLinuxClient(runner)

	require.NoError(t, client.CreateBridge("b.5.0"))
	require.NoError(t, client.CreateInterface("b.5.0", "veth0"))
	require.NoError(t, client.DisableMACLearning("b.5.0"))
	require.NoError(t, client.DeleteInterface("b.5.0", "veth0"))
	require.NoError(t, client.DeleteBridge("b.5.0"))

	want := []string{
		"ip link add name b.5.0 type bridge",
		"ip link set b.5.0 type bridge stp_state 0",
		"ip link set b.5.0 type bridge forward_delay 0",
		"ip link set b.5.0 type bridge mcast_snooping 0",
		"ip link set b.5.0 up",
		"ip link set dev veth0 master b.5.0",
		"ip link set veth0 up",
		"ip link set b.5.0 type bridge ageing_time 0",
		"ip link set dev veth0 nomaster",
		"ip link set b.5.0 down",
		"ip link delete b.5.0 type bridge",
	}
	if diff := cmp.Diff(want, runner.commands); diff != "" {
		t.Errorf("command sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestLinuxCreateBridgeStopsOnFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.errs["ip link set b.5.0 type bridge stp_state 0"] = errors.New("exit status 2")
	client := NewLinuxClient(runner)

	err := client.CreateBridge("b.5.0")
	require.Error(t, err)

	// The first step's effect stays in place; nothing is rolled back and
	// the bridge is never brought up.
	want := []string{
		"ip link add name b.5.0 type bridge",
		"ip link set b.5.0 type bridge stp_state 0",
	}
	assert.Equal(t, want, runner.commands)
}

func TestLinuxCreateVeth(t *testing.T) {
	runner := newFakeRunner()
	client := NewLinuxClient(runner)

	require.NoError(t, client.CreateVeth("veth0", "veth0p"))
	assert.Equal(t,
		[]string{"ip link add name veth0 type veth peer name veth0p"},
		runner.commands)
}

func TestLinuxCreateGreTap(t *testing.T) {
	tests := []struct {
		name   string
		opts   GreTapOptions
		want   string
	}{
		{
			name: "remote_only",
			opts: GreTapOptions{},
			want: "ip link add gt0 type gretap remote 192.168.1.2",
		},
		{
			name: "with_local",
			opts: GreTapOptions{Local: "192.168.1.1"},
			want: "ip link add gt0 type gretap remote 192.168.1.2 local 192.168.1.1",
		},
		{
			name: "with_ttl_and_key",
			opts: GreTapOptions{TTL: intPtr(64), Key: intPtr(42)},
			want: "ip link add gt0 type gretap remote 192.168.1.2 ttl 64 key 42",
		},
		{
			name: "all_modifiers_fixed_order",
			opts: GreTapOptions{Local: "192.168.1.1", TTL: intPtr(64), Key: intPtr(42)},
			want: "ip link add gt0 type gretap remote 192.168.1.2 local 192.168.1.1 ttl 64 key 42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			client := NewLinuxClient(runner)

			require.NoError(t, client.CreateGreTap("gt0", "192.168.1.2", tt.opts))
			assert.Equal(t, []string{tt.want}, runner.commands)
		})
	}
}

func TestLinuxCreateAddress(t *testing.T) {
	runner := newFakeRunner()
	client := NewLinuxClient(runner)

	require.NoError(t, client.CreateAddress("eth0", "10.0.0.1/24", ""))
	require.NoError(t, client.CreateAddress("eth0", "10.0.0.1/24", "10.0.0.255"))

	want := []string{
		"ip address add 10.0.0.1/24 dev eth0",
		"ip address add 10.0.0.1/24 broadcast 10.0.0.255 dev eth0",
	}
	assert.Equal(t, want, runner.commands)
}

func TestLinuxDeviceFlushConditional(t *testing.T) {
	runner := newFakeRunner()
	client := NewLinuxClient(runner)

	require.NoError(t, client.DeviceFlush("eth0"))

	require.Len(t, runner.shell, 1)
	assert.Equal(t,
		"[ -e /sys/class/net/eth0 ] && ip -6 address flush dev eth0 || true",
		runner.shell[0])
	assert.Empty(t, runner.commands)
}

func TestLinuxDeviceOperations(t *testing.T) {
	tests := []struct {
		name string
		call func(c *LinuxClient) error
		want string
	}{
		{"hostname", func(c *LinuxClient) error { return c.SetHostname("n1") }, "hostname n1"},
		{"route", func(c *LinuxClient) error { return c.CreateRoute("10.0.0.0/24", "eth0") }, "ip route add 10.0.0.0/24 dev eth0"},
		{"up", func(c *LinuxClient) error { return c.DeviceUp("eth0") }, "ip link set eth0 up"},
		{"down", func(c *LinuxClient) error { return c.DeviceDown("eth0") }, "ip link set eth0 down"},
		{"rename", func(c *LinuxClient) error { return c.DeviceName("eth0", "eth1") }, "ip link set eth0 name eth1"},
		{"netns", func(c *LinuxClient) error { return c.DeviceNS("eth0", "node1") }, "ip link set eth0 netns node1"},
		{"mac", func(c *LinuxClient) error { return c.DeviceMAC("eth0", "00:11:22:33:44:55") }, "ip link set dev eth0 address 00:11:22:33:44:55"},
		{"delete", func(c *LinuxClient) error { return c.DeleteDevice("eth0") }, "ip link delete eth0"},
		{"delete_tc", func(c *LinuxClient) error { return c.DeleteTC("eth0") }, "tc qdisc delete dev eth0 root"},
		{"checksums_off", func(c *LinuxClient) error { return c.ChecksumsOff("eth0") }, "ethtool -K eth0 rx off tx off"},
		{"delete_address", func(c *LinuxClient) error { return c.DeleteAddress("eth0", "10.0.0.1/24") }, "ip address delete 10.0.0.1/24 dev eth0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			client := NewLinuxClient(runner)

			require.NoError(t, tt.call(client))
			assert.Equal(t, []string{tt.want}, runner.commands)
		})
	}
}

func TestLinuxQueries(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["ip link show eth0"] = "2: eth0: <BROADCAST,MULTICAST,UP> mtu 1500"
	runner.outputs["cat /sys/class/net/eth0/address"] = "00:11:22:33:44:55"
	runner.outputs["cat /sys/class/net/eth0/ifindex"] = "2"
	client := NewLinuxClient(runner)

	show, err := client.DeviceShow("eth0")
	require.NoError(t, err)
	assert.Contains(t, show, "eth0")

	mac, err := client.GetMAC("eth0")
	require.NoError(t, err)
	assert.Equal(t, "00:11:22:33:44:55", mac)

	ifindex, err := client.GetIfindex("eth0")
	require.NoError(t, err)
	assert.Equal(t, "2", ifindex)
}

func TestLinuxExistingBridges(t *testing.T) {
	const listCmd = "ip -j link show type bridge"

	tests := []struct {
		name   string
		output string
		nodeID string
		want   bool
	}{
		{
			name:   "match",
			output: `[{"ifname":"b.5.0"}]`,
			nodeID: "5",
			want:   true,
		},
		{
			name:   "two_fields_never_match",
			output: `[{"ifname":"foo.bar"}]`,
			nodeID: "bar",
			want:   false,
		},
		{
			name:   "four_fields_never_match",
			output: `[{"ifname":"b.5.0.1"}]`,
			nodeID: "5",
			want:   false,
		},
		{
			name:   "wrong_tag",
			output: `[{"ifname":"x.5.0"}]`,
			nodeID: "5",
			want:   false,
		},
		{
			name:   "id_is_whole_field_not_prefix",
			output: `[{"ifname":"b.50.0"}]`,
			nodeID: "5",
			want:   false,
		},
		{
			name:   "no_dots",
			output: `[{"ifname":"docker0"}]`,
			nodeID: "5",
			want:   false,
		},
		{
			name:   "mixed",
			output: `[{"ifname":"docker0"},{"ifname":"foo.bar"},{"ifname":"b.7.2"}]`,
			nodeID: "7",
			want:   true,
		},
		{
			name:   "empty_output",
			output: "",
			nodeID: "5",
			want:   false,
		},
		{
			name:   "empty_list",
			output: "[]",
			nodeID: "5",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.outputs[listCmd] = tt.output
			client := NewLinuxClient(runner)

			got, err := client.ExistingBridges(tt.nodeID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinuxExistingBridgesBadJSON(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["ip -j link show type bridge"] = "not json"
	client := NewLinuxClient(runner)

	_, err := client.ExistingBridges("5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse bridge listing")
}

func TestLinuxListBridges(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["ip -j link show type bridge"] =
		`[{"ifname":"b.5.0"},{"ifname":"b.5.1"},{"ifname":"b.6.0"},{"ifname":"virbr0"}]`
	client := NewLinuxClient(runner)

	names, err := client.ListBridges("5")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.5.0", "b.5.1"}, names)
}
