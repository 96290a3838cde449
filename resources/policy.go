package resources

import (
	"errors"
	"fmt"
	"slices"
)

// ErrOperationDenied is returned before dispatch when the Policy rejects an operation.
var ErrOperationDenied = errors.New("operation denied by policy")

// Operation names a resource operation for policy decisions.
type Operation string

const (
	OpNodeList         Operation = "node.list"
	OpNodeStatus       Operation = "node.status"
	OpNodeReboot       Operation = "node.reboot"
	OpNodeShutdown     Operation = "node.shutdown"
	OpVMList           Operation = "vm.list"
	OpVMStatus         Operation = "vm.status"
	OpVMStart          Operation = "vm.start"
	OpVMStop           Operation = "vm.stop"
	OpVMRestart        Operation = "vm.restart"
	OpVMCreate         Operation = "vm.create"
	OpVMDelete         Operation = "vm.delete"
	OpVMClone          Operation = "vm.clone"
	OpVMConfig         Operation = "vm.config"
	OpVMUpdate         Operation = "vm.update"
	OpContainerList    Operation = "container.list"
	OpContainerStatus  Operation = "container.status"
	OpContainerStart   Operation = "container.start"
	OpContainerStop    Operation = "container.stop"
	OpContainerRestart Operation = "container.restart"
	OpContainerCreate  Operation = "container.create"
	OpContainerDelete  Operation = "container.delete"
	OpContainerClone   Operation = "container.clone"
	OpContainerConfig  Operation = "container.config"
	OpContainerUpdate  Operation = "container.update"
	OpStorageList      Operation = "storage.list"
	OpStorageStatus    Operation = "storage.status"
	OpStorageContent   Operation = "storage.content"
	OpStorageDelete    Operation = "storage.delete"
)

// Policy gates operations. Denied wins over Allowed; an empty Allowed list allows
// everything not denied. DryRun short-circuits mutating operations after validation.
type Policy struct {
	Allowed []Operation
	Denied  []Operation
	DryRun  bool
}

// Check returns an error matching ErrOperationDenied when op may not run.
func (p Policy) Check(op Operation) error {
	if slices.Contains(p.Denied, op) {
		return fmt.Errorf("%w: %s is denied", ErrOperationDenied, op)
	}
	if len(p.Allowed) > 0 && !slices.Contains(p.Allowed, op) {
		return fmt.Errorf("%w: %s is not allowed", ErrOperationDenied, op)
	}
	return nil
}

// ReadOnlyPolicy allows listing and status operations only.
func ReadOnlyPolicy() Policy {
	return Policy{Allowed: []Operation{
		OpNodeList, OpNodeStatus,
		OpVMList, OpVMStatus, OpVMConfig,
		OpContainerList, OpContainerStatus, OpContainerConfig,
		OpStorageList, OpStorageStatus, OpStorageContent,
	}}
}
