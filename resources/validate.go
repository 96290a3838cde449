package resources

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrInvalidParameter wraps every validation failure.
var ErrInvalidParameter = errors.New("invalid parameter")

const (
	MinVMID   = 100
	MaxVMID   = 999999999
	MinMemory = 16
	MaxMemory = 8388608
	MinCores  = 1
	MaxCores  = 128

	DefaultCores   = 1
	DefaultMemory  = 512
	DefaultOSType  = "l26"
	DefaultStorage = "local-lvm"
)

var (
	nameRe    = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	storageRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	vmidRules     = []validation.Rule{validation.Required, validation.Min(MinVMID), validation.Max(MaxVMID)}
	nodeRules     = []validation.Rule{validation.Required, validation.Length(1, 63), validation.Match(nameRe)}
	hostnameRules = []validation.Rule{validation.Length(1, 63), validation.Match(nameRe)}
	storageRules  = []validation.Rule{validation.Required, validation.Length(1, 100), validation.Match(storageRe)}
	memoryRules   = []validation.Rule{validation.Min(MinMemory), validation.Max(MaxMemory)}
	coresRules    = []validation.Rule{validation.Min(MinCores), validation.Max(MaxCores)}
	osTypeRules   = []validation.Rule{validation.In("l26", "l24", "win10", "win11", "other")}
)

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
}

// ValidateVMID checks 100 <= vmid <= 999999999.
func ValidateVMID(vmid int) error {
	return invalid(validation.Validate(vmid, vmidRules...))
}

// ValidateNodeName checks 1-63 characters of [a-zA-Z0-9-].
func ValidateNodeName(node string) error {
	return invalid(validation.Validate(node, nodeRules...))
}

// ValidateStorageName checks 1-100 characters of [a-zA-Z0-9_-].
func ValidateStorageName(storage string) error {
	return invalid(validation.Validate(storage, storageRules...))
}

func validateGuestRef(node string, vmid int) error {
	return invalid(validation.Errors{
		"node": validation.Validate(node, nodeRules...),
		"vmid": validation.Validate(vmid, vmidRules...),
	}.Filter())
}

// SanitizeName removes NUL and other C0 control characters and DEL.
func SanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// VMCreateParams describes a new QEMU virtual machine. Zero values take the defaults
// 1 core, 512 MB, ostype l26, storage local-lvm.
type VMCreateParams struct {
	Node    string
	VMID    int
	Name    string
	Cores   int
	Memory  int
	Disk    string
	OSType  string
	ISO     string
	Net0    string
	Storage string
}

func (p *VMCreateParams) applyDefaults() {
	if p.Cores == 0 {
		p.Cores = DefaultCores
	}
	if p.Memory == 0 {
		p.Memory = DefaultMemory
	}
	if p.OSType == "" {
		p.OSType = DefaultOSType
	}
	if p.Storage == "" {
		p.Storage = DefaultStorage
	}
}

func (p VMCreateParams) Validate() error {
	p.applyDefaults()
	return invalid(validation.ValidateStruct(&p,
		validation.Field(&p.Node, nodeRules...),
		validation.Field(&p.VMID, vmidRules...),
		validation.Field(&p.Name, hostnameRules...),
		validation.Field(&p.Cores, coresRules...),
		validation.Field(&p.Memory, memoryRules...),
		validation.Field(&p.OSType, osTypeRules...),
	))
}

// ContainerCreateParams describes a new LXC container. OSTemplate is required.
type ContainerCreateParams struct {
	Node       string
	VMID       int
	Hostname   string
	Cores      int
	Memory     int
	RootFS     string
	OSTemplate string
	Password   string
	Net0       string
	Storage    string
}

func (p *ContainerCreateParams) applyDefaults() {
	if p.Cores == 0 {
		p.Cores = DefaultCores
	}
	if p.Memory == 0 {
		p.Memory = DefaultMemory
	}
	if p.Storage == "" {
		p.Storage = DefaultStorage
	}
}

func (p ContainerCreateParams) Validate() error {
	p.applyDefaults()
	return invalid(validation.ValidateStruct(&p,
		validation.Field(&p.Node, nodeRules...),
		validation.Field(&p.VMID, vmidRules...),
		validation.Field(&p.Hostname, hostnameRules...),
		validation.Field(&p.Cores, coresRules...),
		validation.Field(&p.Memory, memoryRules...),
		validation.Field(&p.OSTemplate, validation.Required),
		validation.Field(&p.Password, validation.Length(5, 0)),
	))
}

var errEmptyConfig = errors.New("config: no keys to update")

var errBadVolID = errors.New("volid: must be non-empty and free of control characters")

func validateStorageRef(node, storage string) error {
	return invalid(validation.Errors{
		"node":    validation.Validate(node, nodeRules...),
		"storage": validation.Validate(storage, storageRules...),
	}.Filter())
}
