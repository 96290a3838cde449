package resources

import (
	"context"
	"net/http"
	"net/url"
)

// ListStorage returns the cluster storage definitions.
func (s *Service) ListStorage(ctx context.Context) ([]Storage, error) {
	var out []Storage
	if err := s.get(ctx, OpStorageList, "/storage", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) StorageStatus(ctx context.Context, node, storage string) (map[string]any, error) {
	if err := validateStorageRef(node, storage); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := s.get(ctx, OpStorageStatus, storagePath(node, storage)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StorageContent lists volumes on storage. content filters by type ("iso", "backup",
// "vztmpl", "images"); empty lists everything.
func (s *Service) StorageContent(ctx context.Context, node, storage, content string) ([]StorageContent, error) {
	if err := validateStorageRef(node, storage); err != nil {
		return nil, err
	}
	var q url.Values
	if content != "" {
		q = url.Values{"content": {content}}
	}
	var out []StorageContent
	if err := s.get(ctx, OpStorageContent, storagePath(node, storage)+"/content", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteStorageContent removes volid, for example "local:backup/vzdump-qemu-100.vma.zst".
func (s *Service) DeleteStorageContent(ctx context.Context, node, storage, volid string) (Result, error) {
	if err := validateStorageRef(node, storage); err != nil {
		return Result{}, err
	}
	if volid == "" || SanitizeName(volid) != volid {
		return Result{}, invalid(errBadVolID)
	}
	path := storagePath(node, storage) + "/content/" + url.PathEscape(volid)
	return s.mutate(ctx, OpStorageDelete, http.MethodDelete, path, nil,
		"Volume "+volid+" deleted from storage "+storage)
}

func storagePath(node, storage string) string {
	return "/nodes/" + node + "/storage/" + storage
}
