package resources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// guestKind holds what differs between QEMU virtual machines and LXC containers.
type guestKind struct {
	segment string
	label   string
	list    Operation
	status  Operation
	start   Operation
	stop    Operation
	restart Operation
	create  Operation
	remove  Operation
	clone   Operation
	config  Operation
	update  Operation
}

var (
	qemuKind = guestKind{
		segment: "qemu", label: "VM",
		list: OpVMList, status: OpVMStatus, start: OpVMStart, stop: OpVMStop,
		restart: OpVMRestart, create: OpVMCreate, remove: OpVMDelete, clone: OpVMClone,
		config: OpVMConfig, update: OpVMUpdate,
	}
	lxcKind = guestKind{
		segment: "lxc", label: "Container",
		list: OpContainerList, status: OpContainerStatus, start: OpContainerStart, stop: OpContainerStop,
		restart: OpContainerRestart, create: OpContainerCreate, remove: OpContainerDelete, clone: OpContainerClone,
		config: OpContainerConfig, update: OpContainerUpdate,
	}
)

func (k guestKind) base(node string) string {
	return "/nodes/" + node + "/" + k.segment
}

func (k guestKind) path(node string, vmid int) string {
	return k.base(node) + "/" + strconv.Itoa(vmid)
}

func (k guestKind) describe(node string, vmid int, what string) string {
	return k.label + " " + strconv.Itoa(vmid) + " on node " + node + " " + what
}

// ListVMs lists QEMU guests on node, or across every node when node is empty. A
// cluster-wide listing returns what it collected together with ErrPartialListing when
// some nodes failed.
func (s *Service) ListVMs(ctx context.Context, node string) ([]VM, error) {
	return s.listGuests(ctx, qemuKind, node)
}

// ListContainers is ListVMs for LXC guests.
func (s *Service) ListContainers(ctx context.Context, node string) ([]Container, error) {
	return s.listGuests(ctx, lxcKind, node)
}

func (s *Service) listGuests(ctx context.Context, k guestKind, node string) ([]Guest, error) {
	if node != "" {
		return s.nodeGuests(ctx, k, node)
	}
	if err := s.policy.Check(k.list); err != nil {
		return nil, err
	}
	nodes, err := s.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	return fanOutNodes(ctx, s, nodes, func(ctx context.Context, node string) ([]Guest, error) {
		return s.nodeGuests(ctx, k, node)
	})
}

func (s *Service) nodeGuests(ctx context.Context, k guestKind, node string) ([]Guest, error) {
	if err := ValidateNodeName(node); err != nil {
		return nil, err
	}
	var guests []Guest
	if err := s.get(ctx, k.list, k.base(node), nil, &guests); err != nil {
		return nil, err
	}
	for i := range guests {
		guests[i].Node = node
	}
	return guests, nil
}

func (s *Service) VMStatus(ctx context.Context, node string, vmid int) (map[string]any, error) {
	return s.guestGet(ctx, qemuKind, qemuKind.status, node, vmid, "status/current")
}

func (s *Service) ContainerStatus(ctx context.Context, node string, vmid int) (map[string]any, error) {
	return s.guestGet(ctx, lxcKind, lxcKind.status, node, vmid, "status/current")
}

func (s *Service) VMConfig(ctx context.Context, node string, vmid int) (map[string]any, error) {
	return s.guestGet(ctx, qemuKind, qemuKind.config, node, vmid, "config")
}

func (s *Service) ContainerConfig(ctx context.Context, node string, vmid int) (map[string]any, error) {
	return s.guestGet(ctx, lxcKind, lxcKind.config, node, vmid, "config")
}

func (s *Service) guestGet(ctx context.Context, k guestKind, op Operation, node string, vmid int, leaf string) (map[string]any, error) {
	if err := validateGuestRef(node, vmid); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := s.get(ctx, op, k.path(node, vmid)+"/"+leaf, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) StartVM(ctx context.Context, node string, vmid int) (Result, error) {
	return s.guestAction(ctx, qemuKind, qemuKind.start, node, vmid, "start", "started")
}

func (s *Service) StartContainer(ctx context.Context, node string, vmid int) (Result, error) {
	return s.guestAction(ctx, lxcKind, lxcKind.start, node, vmid, "start", "started")
}

// StopVM shuts the guest down cleanly, or powers it off when force is set.
func (s *Service) StopVM(ctx context.Context, node string, vmid int, force bool) (Result, error) {
	return s.stopGuest(ctx, qemuKind, node, vmid, force)
}

func (s *Service) StopContainer(ctx context.Context, node string, vmid int, force bool) (Result, error) {
	return s.stopGuest(ctx, lxcKind, node, vmid, force)
}

func (s *Service) stopGuest(ctx context.Context, k guestKind, node string, vmid int, force bool) (Result, error) {
	if force {
		return s.guestAction(ctx, k, k.stop, node, vmid, "stop", "stopped")
	}
	return s.guestAction(ctx, k, k.stop, node, vmid, "shutdown", "shut down")
}

func (s *Service) RestartVM(ctx context.Context, node string, vmid int) (Result, error) {
	return s.guestAction(ctx, qemuKind, qemuKind.restart, node, vmid, "reboot", "restarted")
}

func (s *Service) RestartContainer(ctx context.Context, node string, vmid int) (Result, error) {
	return s.guestAction(ctx, lxcKind, lxcKind.restart, node, vmid, "reboot", "restarted")
}

func (s *Service) guestAction(ctx context.Context, k guestKind, op Operation, node string, vmid int, action, past string) (Result, error) {
	if err := validateGuestRef(node, vmid); err != nil {
		return Result{}, err
	}
	path := k.path(node, vmid) + "/status/" + action
	return s.mutate(ctx, op, http.MethodPost, path, nil, k.describe(node, vmid, past))
}

// CreateVM creates a QEMU guest. Zero-valued sizing fields take the package defaults.
func (s *Service) CreateVM(ctx context.Context, p VMCreateParams) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	p.applyDefaults()

	params := url.Values{
		"vmid":   {strconv.Itoa(p.VMID)},
		"cores":  {strconv.Itoa(p.Cores)},
		"memory": {strconv.Itoa(p.Memory)},
		"ostype": {p.OSType},
	}
	if name := SanitizeName(p.Name); name != "" {
		params.Set("name", name)
	}
	if p.Disk != "" {
		params.Set("scsi0", p.Storage+":"+p.Disk)
	}
	if p.ISO != "" {
		params.Set("cdrom", p.ISO)
	}
	if p.Net0 != "" {
		params.Set("net0", p.Net0)
	}
	return s.mutate(ctx, qemuKind.create, http.MethodPost, qemuKind.base(p.Node), params,
		qemuKind.describe(p.Node, p.VMID, "created"))
}

// CreateContainer creates an LXC guest from p.OSTemplate.
func (s *Service) CreateContainer(ctx context.Context, p ContainerCreateParams) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	p.applyDefaults()

	params := url.Values{
		"vmid":       {strconv.Itoa(p.VMID)},
		"cores":      {strconv.Itoa(p.Cores)},
		"memory":     {strconv.Itoa(p.Memory)},
		"ostemplate": {p.OSTemplate},
		"storage":    {p.Storage},
	}
	if hostname := SanitizeName(p.Hostname); hostname != "" {
		params.Set("hostname", hostname)
	}
	if p.RootFS != "" {
		params.Set("rootfs", p.Storage+":"+p.RootFS)
	}
	if p.Password != "" {
		params.Set("password", p.Password)
	}
	if p.Net0 != "" {
		params.Set("net0", p.Net0)
	}
	return s.mutate(ctx, lxcKind.create, http.MethodPost, lxcKind.base(p.Node), params,
		lxcKind.describe(p.Node, p.VMID, "created"))
}

// DeleteVM removes the guest and purges it from backup jobs and replication.
func (s *Service) DeleteVM(ctx context.Context, node string, vmid int) (Result, error) {
	return s.deleteGuest(ctx, qemuKind, node, vmid)
}

func (s *Service) DeleteContainer(ctx context.Context, node string, vmid int) (Result, error) {
	return s.deleteGuest(ctx, lxcKind, node, vmid)
}

func (s *Service) deleteGuest(ctx context.Context, k guestKind, node string, vmid int) (Result, error) {
	if err := validateGuestRef(node, vmid); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, k.remove, http.MethodDelete, k.path(node, vmid), url.Values{"purge": {"1"}},
		k.describe(node, vmid, "deleted"))
}

// CloneVM copies vmid to newID. full requests a full clone instead of a linked one.
func (s *Service) CloneVM(ctx context.Context, node string, vmid, newID int, name string, full bool) (Result, error) {
	return s.cloneGuest(ctx, qemuKind, node, vmid, newID, name, full)
}

func (s *Service) CloneContainer(ctx context.Context, node string, vmid, newID int, hostname string, full bool) (Result, error) {
	return s.cloneGuest(ctx, lxcKind, node, vmid, newID, hostname, full)
}

func (s *Service) cloneGuest(ctx context.Context, k guestKind, node string, vmid, newID int, name string, full bool) (Result, error) {
	if err := validateGuestRef(node, vmid); err != nil {
		return Result{}, err
	}
	if err := ValidateVMID(newID); err != nil {
		return Result{}, err
	}

	params := url.Values{"newid": {strconv.Itoa(newID)}, "full": {"0"}}
	if full {
		params.Set("full", "1")
	}
	if name = SanitizeName(name); name != "" {
		nameKey := "name"
		if k.segment == lxcKind.segment {
			nameKey = "hostname"
		}
		params.Set(nameKey, name)
	}
	return s.mutate(ctx, k.clone, http.MethodPost, k.path(node, vmid)+"/clone", params,
		k.describe(node, vmid, "cloned to "+strconv.Itoa(newID)))
}

// UpdateVMConfig applies config keys as-is. Callers are responsible for key names.
func (s *Service) UpdateVMConfig(ctx context.Context, node string, vmid int, config url.Values) (Result, error) {
	return s.updateGuest(ctx, qemuKind, http.MethodPost, node, vmid, config)
}

func (s *Service) UpdateContainerConfig(ctx context.Context, node string, vmid int, config url.Values) (Result, error) {
	return s.updateGuest(ctx, lxcKind, http.MethodPut, node, vmid, config)
}

func (s *Service) updateGuest(ctx context.Context, k guestKind, method, node string, vmid int, config url.Values) (Result, error) {
	if err := validateGuestRef(node, vmid); err != nil {
		return Result{}, err
	}
	if len(config) == 0 {
		return Result{}, invalid(errEmptyConfig)
	}
	return s.mutate(ctx, k.update, method, k.path(node, vmid)+"/config", config,
		k.describe(node, vmid, "configuration updated"))
}
