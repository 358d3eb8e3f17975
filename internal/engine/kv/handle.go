package kv

import (
	"context"
	"strconv"
	"strings"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/engine"
)

// Handle dispatches a request by its subpath prefix (data/, metadata/,
// undelete/, destroy/), mirroring the real KV-v2 HTTP API's path
// convention of encoding the sub-operation in the URL rather than the
// verb alone.
func (e *Engine) Handle(ctx context.Context, req engine.Request) (engine.Response, error) {
	switch {
	case strings.HasPrefix(req.Subpath, dataPrefix):
		return e.handleData(ctx, req, strings.TrimPrefix(req.Subpath, dataPrefix))
	case strings.HasPrefix(req.Subpath, metadataPrefix):
		return e.handleMetadata(ctx, req, strings.TrimPrefix(req.Subpath, metadataPrefix))
	case strings.HasPrefix(req.Subpath, undeletePrefix):
		return e.handleUndelete(ctx, req, strings.TrimPrefix(req.Subpath, undeletePrefix))
	case strings.HasPrefix(req.Subpath, destroyPrefix):
		return e.handleDestroy(ctx, req, strings.TrimPrefix(req.Subpath, destroyPrefix))
	default:
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "unrecognized kv-v2 path %q", req.Subpath)
	}
}

func (e *Engine) handleData(ctx context.Context, req engine.Request, path string) (engine.Response, error) {
	switch req.Operation {
	case engine.OpRead:
		version := intField(req.Data, "version", 0)
		data, v, err := e.Read(ctx, path, version)
		if err != nil {
			return engine.Response{}, err
		}
		return engine.Response{Data: map[string]any{"data": data, "version": v}}, nil

	case engine.OpCreate, engine.OpUpdate:
		version, err := e.Write(ctx, path, req.Data)
		if err != nil {
			return engine.Response{}, err
		}
		compensate := func(ctx context.Context) error {
			return e.Destroy(ctx, path, []int{version})
		}
		return engine.Response{Data: map[string]any{"version": version}, Compensate: compensate}, nil

	case engine.OpDelete:
		versions := intSliceField(req.Data, "versions")
		if err := e.SoftDelete(ctx, path, versions); err != nil {
			return engine.Response{}, err
		}
		return engine.Response{}, nil

	default:
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "unsupported operation %q on kv-v2 data", req.Operation)
	}
}

func (e *Engine) handleMetadata(ctx context.Context, req engine.Request, path string) (engine.Response, error) {
	switch req.Operation {
	case engine.OpRead:
		m, ok, err := e.getMetadata(ctx, path)
		if err != nil {
			return engine.Response{}, err
		}
		if !ok {
			return engine.Response{}, apperr.New(apperr.KindNotFound, "no secret at %q", path)
		}
		return engine.Response{Data: map[string]any{
			"current_version": m.CurrentVersion,
			"max_versions":    m.MaxVersions,
			"versions":        m.Versions,
		}}, nil

	case engine.OpUpdate:
		maxVersions := intField(req.Data, "max_versions", defaultMaxVersions)
		if err := e.ConfigureMaxVersions(ctx, path, maxVersions); err != nil {
			return engine.Response{}, err
		}
		return engine.Response{}, nil

	case engine.OpDelete:
		if err := e.Destroy(ctx, path, nil); err != nil {
			return engine.Response{}, err
		}
		return engine.Response{}, nil

	case engine.OpList:
		children, err := e.List(ctx, path)
		if err != nil {
			return engine.Response{}, err
		}
		return engine.Response{Data: map[string]any{"keys": children}}, nil

	default:
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "unsupported operation %q on kv-v2 metadata", req.Operation)
	}
}

func (e *Engine) handleUndelete(ctx context.Context, req engine.Request, path string) (engine.Response, error) {
	if req.Operation != engine.OpUpdate {
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "undelete requires update capability")
	}
	versions := intSliceField(req.Data, "versions")
	if err := e.Undelete(ctx, path, versions); err != nil {
		return engine.Response{}, err
	}
	return engine.Response{}, nil
}

func (e *Engine) handleDestroy(ctx context.Context, req engine.Request, path string) (engine.Response, error) {
	if req.Operation != engine.OpUpdate && req.Operation != engine.OpDelete {
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "destroy requires update or delete capability")
	}
	versions := intSliceField(req.Data, "versions")
	if err := e.Destroy(ctx, path, versions); err != nil {
		return engine.Response{}, err
	}
	return engine.Response{}, nil
}

func intField(data map[string]any, key string, def int) int {
	v, ok := data[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

func intSliceField(data map[string]any, key string) []int {
	v, ok := data[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		switch n := item.(type) {
		case int:
			out = append(out, n)
		case float64:
			out = append(out, int(n))
		}
	}
	return out
}
