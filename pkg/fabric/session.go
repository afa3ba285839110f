package fabric

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/netfabric/netfabric/pkg/shell"
)

// ErrBridgeCollision is returned when a node already owns a bridge on the
// host, usually residue of a prior run that was not torn down. TeardownNode
// removes such residue.
var ErrBridgeCollision = errors.New("bridge already exists for node")

// SessionConfig controls session behavior.
type SessionConfig struct {
	// LockDir is where advisory lock files live.
	LockDir string
	// EnableLocking serializes check-then-create bridge sequences across
	// processes with a host-level advisory lock per node id. Off by
	// default: a single provisioning process needs no cross-process lock.
	EnableLocking bool
}

// Session drives a provisioning run against one backend. It composes the
// capability contract into the sequences a topology builder needs:
// collision-checked bridge creation, veth and tunnel attachment, shaping
// removal, and teardown of leftover node state.
//
// A Session holds no kernel state of its own; every decision is re-derived
// from the host at call time.
type Session struct {
	id      string
	client  NetClient
	lockDir string
	locking bool
}

// NewSession creates a provisioning session over a backend client.
func NewSession(cfg SessionConfig, client NetClient) *Session {
	s := &Session{
		id:      uuid.New().String(),
		client:  client,
		lockDir: cfg.LockDir,
		locking: cfg.EnableLocking,
	}
	log.Info().
		Str("session_id", s.id).
		Bool("locking", s.locking).
		Msg("Provisioning session created")
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Client exposes the underlying backend for operations the session does not
// compose.
func (s *Session) Client() NetClient {
	return s.client
}

// CreateNodeBridge creates the bridge `b.<nodeID>.<sequence>` with MAC
// learning disabled. The collision query runs first and a hit refuses
// creation with ErrBridgeCollision; with locking enabled the whole
// check-then-create sequence holds the node's advisory host lock.
//
// On partial failure nothing is rolled back: a bridge that was created but
// not fully configured stays on the host for the caller to retry against or
// tear down.
func (s *Session) CreateNodeBridge(nodeID string, sequence int) (string, error) {
	if s.locking {
		lock, err := acquireHostLock(s.lockDir, nodeID)
		if err != nil {
			return "", err
		}
		defer func() {
			if err := lock.release(); err != nil {
				log.Warn().Err(err).Str("node_id", nodeID).Msg("Failed to release host lock")
			}
		}()
	}

	exists, err := s.client.ExistingBridges(nodeID)
	if err != nil {
		return "", fmt.Errorf("failed to check existing bridges: %w", err)
	}
	if exists {
		return "", fmt.Errorf("node %s: %w", nodeID, ErrBridgeCollision)
	}

	name := BridgeName(nodeID, sequence)
	if err := s.client.CreateBridge(name); err != nil {
		return "", fmt.Errorf("failed to create bridge %s: %w", name, err)
	}
	if err := s.client.DisableMACLearning(name); err != nil {
		return "", fmt.Errorf("failed to disable mac learning on %s: %w", name, err)
	}

	log.Info().
		Str("session_id", s.id).
		Str("node_id", nodeID).
		Str("bridge", name).
		Msg("Node bridge created")
	return name, nil
}

// AttachVeth creates a veth pair and attaches the named end to a bridge.
// The peer end is left for the caller to address, rename, or move into a
// node's namespace.
func (s *Session) AttachVeth(bridge, name, peer string) error {
	if err := s.client.CreateVeth(name, peer); err != nil {
		return fmt.Errorf("failed to create veth %s/%s: %w", name, peer, err)
	}
	if err := s.client.CreateInterface(bridge, name); err != nil {
		return fmt.Errorf("failed to attach %s to %s: %w", name, bridge, err)
	}
	return nil
}

// CreateTunnel creates a GRE tap device toward a remote host and attaches
// it to a bridge, extending the emulated topology across hosts. The remote
// side runs the mirror image of this call.
func (s *Session) CreateTunnel(bridge, device, remote string, opts GreTapOptions) error {
	if err := s.client.CreateGreTap(device, remote, opts); err != nil {
		return fmt.Errorf("failed to create gretap %s: %w", device, err)
	}
	if err := s.client.CreateInterface(bridge, device); err != nil {
		return fmt.Errorf("failed to attach %s to %s: %w", device, bridge, err)
	}
	log.Debug().
		Str("session_id", s.id).
		Str("bridge", bridge).
		Str("device", device).
		Str("remote", remote).
		Msg("Tunnel attached")
	return nil
}

// RemoveShaping removes the root qdisc from a device. A device with no
// qdisc attached counts as success: the backend reports an error in that
// case, but for the shaping layer absence of the rule is the desired state.
func (s *Session) RemoveShaping(device string) error {
	err := s.client.DeleteTC(device)
	if err == nil {
		return nil
	}
	var cmdErr *shell.CommandError
	if errors.As(err, &cmdErr) && qdiscAbsent(cmdErr.Stderr) {
		log.Debug().
			Str("session_id", s.id).
			Str("device", device).
			Msg("No qdisc attached, nothing to remove")
		return nil
	}
	return err
}

// qdiscAbsent reports whether a tc failure means no root qdisc was
// attached. The wording differs across iproute2 versions.
func qdiscAbsent(stderr string) bool {
	msg := strings.ToLower(stderr)
	for _, marker := range []string{
		"cannot find specified qdisc",
		"qdisc with handle of zero",
		"invalid handle",
		"no such file or directory",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// TeardownNode deletes every bridge on the host whose identity token is
// owned by the node. This is the recovery path for residue of a crashed or
// improperly torn-down prior run; failures on individual bridges are
// collected so the rest still get removed.
func (s *Session) TeardownNode(nodeID string) error {
	names, err := s.client.ListBridges(nodeID)
	if err != nil {
		return fmt.Errorf("failed to list bridges for node %s: %w", nodeID, err)
	}
	var errs []error
	for _, name := range names {
		if err := s.client.DeleteBridge(name); err != nil {
			log.Warn().
				Str("session_id", s.id).
				Str("bridge", name).
				Err(err).
				Msg("Failed to delete leftover bridge")
			errs = append(errs, err)
			continue
		}
		log.Info().
			Str("session_id", s.id).
			Str("node_id", nodeID).
			Str("bridge", name).
			Msg("Leftover bridge deleted")
	}
	return errors.Join(errs...)
}
