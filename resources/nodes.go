package resources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultTaskLimit is used by NodeTasks when limit <= 0.
const DefaultTaskLimit = 50

func (s *Service) ListNodes(ctx context.Context) ([]Node, error) {
	var nodes []Node
	if err := s.get(ctx, OpNodeList, "/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (s *Service) NodeStatus(ctx context.Context, node string) (map[string]any, error) {
	return s.nodeDetail(ctx, node, "status")
}

func (s *Service) NodeVersion(ctx context.Context, node string) (map[string]any, error) {
	return s.nodeDetail(ctx, node, "version")
}

func (s *Service) NodeSubscription(ctx context.Context, node string) (map[string]any, error) {
	return s.nodeDetail(ctx, node, "subscription")
}

func (s *Service) nodeDetail(ctx context.Context, node, leaf string) (map[string]any, error) {
	if err := ValidateNodeName(node); err != nil {
		return nil, err
	}
	var out map[string]any
	if err := s.get(ctx, OpNodeStatus, "/nodes/"+node+"/"+leaf, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) NodeNetwork(ctx context.Context, node string) ([]map[string]any, error) {
	return s.nodeList(ctx, node, "network", nil)
}

func (s *Service) NodeServices(ctx context.Context, node string) ([]map[string]any, error) {
	return s.nodeList(ctx, node, "services", nil)
}

func (s *Service) nodeList(ctx context.Context, node, leaf string, query url.Values) ([]map[string]any, error) {
	if err := ValidateNodeName(node); err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := s.get(ctx, OpNodeStatus, "/nodes/"+node+"/"+leaf, query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NodeTasks returns the most recent tasks of node.
func (s *Service) NodeTasks(ctx context.Context, node string, limit int) ([]Task, error) {
	if err := ValidateNodeName(node); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTaskLimit
	}
	var out []Task
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := s.get(ctx, OpNodeStatus, "/nodes/"+node+"/tasks", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) RebootNode(ctx context.Context, node string) (Result, error) {
	return s.nodeCommand(ctx, OpNodeReboot, node, "reboot", "Node "+node+" reboot initiated")
}

func (s *Service) ShutdownNode(ctx context.Context, node string) (Result, error) {
	return s.nodeCommand(ctx, OpNodeShutdown, node, "shutdown", "Node "+node+" shutdown initiated")
}

func (s *Service) nodeCommand(ctx context.Context, op Operation, node, command, message string) (Result, error) {
	if err := ValidateNodeName(node); err != nil {
		return Result{}, err
	}
	return s.mutate(ctx, op, http.MethodPost, "/nodes/"+node+"/status", url.Values{"command": {command}}, message)
}
