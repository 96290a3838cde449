package resources

import (
	"context"
	"encoding/json"
	"net/url"
)

// Requester dispatches one API call and returns the response "data" member.
// *pveauth.Client satisfies it.
type Requester interface {
	Do(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error)
}

type Node struct {
	Node    string  `json:"node"`
	Status  string  `json:"status"`
	CPU     float64 `json:"cpu,omitempty"`
	MaxCPU  int     `json:"maxcpu,omitempty"`
	Mem     int64   `json:"mem,omitempty"`
	MaxMem  int64   `json:"maxmem,omitempty"`
	Disk    int64   `json:"disk,omitempty"`
	MaxDisk int64   `json:"maxdisk,omitempty"`
	Uptime  int64   `json:"uptime,omitempty"`
}

// Guest is the shared shape of QEMU virtual machines and LXC containers. Node is filled
// in by the cluster-wide listings.
type Guest struct {
	VMID     int    `json:"vmid"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status"`
	Node     string `json:"node,omitempty"`
	CPUs     int    `json:"cpus,omitempty"`
	MaxMem   int64  `json:"maxmem,omitempty"`
	MaxDisk  int64  `json:"maxdisk,omitempty"`
	Uptime   int64  `json:"uptime,omitempty"`
	PID      int    `json:"pid,omitempty"`
	Template int    `json:"template,omitempty"`
}

type (
	VM        = Guest
	Container = Guest
)

type Storage struct {
	Storage string `json:"storage"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Active  int    `json:"active,omitempty"`
	Avail   int64  `json:"avail,omitempty"`
	Total   int64  `json:"total,omitempty"`
	Used    int64  `json:"used,omitempty"`
	Enabled int    `json:"enabled,omitempty"`
}

// StorageContent is one volume on a storage, such as a backup archive or ISO image.
type StorageContent struct {
	VolID   string `json:"volid"`
	Content string `json:"content"`
	CTime   int64  `json:"ctime,omitempty"`
	Format  string `json:"format"`
	Size    int64  `json:"size"`
	VMID    int    `json:"vmid,omitempty"`
}

// Task is an entry of a node's task list.
type Task struct {
	UPID      string `json:"upid"`
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	User      string `json:"user"`
	Status    string `json:"status,omitempty"`
	StartTime int64  `json:"starttime"`
	EndTime   int64  `json:"endtime,omitempty"`
}
