package transit

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/zvault/zvault/internal/apperr"
	"github.com/zvault/zvault/internal/engine"
)

const (
	encryptPrefix = "encrypt/"
	decryptPrefix = "decrypt/"
	rewrapPrefix  = "rewrap/"
	signPrefix    = "sign/"
	verifyPrefix  = "verify/"
	rotateSuffix  = "/rotate"
	configSuffix  = "/config"
)

// Handle dispatches by subpath, mirroring the real transit engine's
// "keys/<name>", "encrypt/<name>", "decrypt/<name>" API shape.
func (e *Engine) Handle(ctx context.Context, req engine.Request) (engine.Response, error) {
	switch {
	case strings.HasPrefix(req.Subpath, keyPrefix):
		return e.handleKeys(ctx, req, strings.TrimPrefix(req.Subpath, keyPrefix))
	case strings.HasPrefix(req.Subpath, encryptPrefix):
		return e.handleEncrypt(ctx, req, strings.TrimPrefix(req.Subpath, encryptPrefix))
	case strings.HasPrefix(req.Subpath, decryptPrefix):
		return e.handleDecrypt(ctx, req, strings.TrimPrefix(req.Subpath, decryptPrefix))
	case strings.HasPrefix(req.Subpath, rewrapPrefix):
		return e.handleRewrap(ctx, req, strings.TrimPrefix(req.Subpath, rewrapPrefix))
	case strings.HasPrefix(req.Subpath, signPrefix):
		return e.handleSign(ctx, req, strings.TrimPrefix(req.Subpath, signPrefix))
	case strings.HasPrefix(req.Subpath, verifyPrefix):
		return e.handleVerify(ctx, req, strings.TrimPrefix(req.Subpath, verifyPrefix))
	default:
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "unrecognized transit path %q", req.Subpath)
	}
}

func (e *Engine) handleKeys(ctx context.Context, req engine.Request, rest string) (engine.Response, error) {
	switch {
	case strings.HasSuffix(rest, rotateSuffix):
		name := strings.TrimSuffix(rest, rotateSuffix)
		if req.Operation != engine.OpUpdate {
			return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "rotate requires update capability")
		}
		v, err := e.Rotate(ctx, name)
		if err != nil {
			return engine.Response{}, err
		}
		return engine.Response{Data: map[string]any{"latest_version": v}}, nil

	case strings.HasSuffix(rest, configSuffix):
		name := strings.TrimSuffix(rest, configSuffix)
		if req.Operation != engine.OpUpdate {
			return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "config requires update capability")
		}
		minDec := intField(req.Data, "min_decryption_version")
		minEnc := intField(req.Data, "min_encryption_version")
		if err := e.SetVersionBounds(ctx, name, minDec, minEnc); err != nil {
			return engine.Response{}, err
		}
		return engine.Response{}, nil

	default:
		name := rest
		switch req.Operation {
		case engine.OpCreate:
			keyType := KeyTypeAEAD
			if t, ok := req.Data["type"].(string); ok && t != "" {
				keyType = KeyType(t)
			}
			if err := e.CreateKey(ctx, name, keyType); err != nil {
				return engine.Response{}, err
			}
			return engine.Response{Compensate: func(ctx context.Context) error {
				return e.store.Delete(ctx, metaKey(name))
			}}, nil

		case engine.OpRead:
			meta, err := e.Metadata(ctx, name)
			if err != nil {
				return engine.Response{}, err
			}
			return engine.Response{Data: meta}, nil

		default:
			return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "unsupported operation %q on transit keys", req.Operation)
		}
	}
}

func (e *Engine) handleEncrypt(ctx context.Context, req engine.Request, name string) (engine.Response, error) {
	if req.Operation != engine.OpUpdate && req.Operation != engine.OpCreate {
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "encrypt requires update capability")
	}
	plaintext, err := base64Field(req.Data, "plaintext")
	if err != nil {
		return engine.Response{}, err
	}
	version := intField(req.Data, "key_version")
	ct, err := e.Encrypt(ctx, name, plaintext, version)
	if err != nil {
		return engine.Response{}, err
	}
	return engine.Response{Data: map[string]any{"ciphertext": ct}}, nil
}

func (e *Engine) handleDecrypt(ctx context.Context, req engine.Request, name string) (engine.Response, error) {
	if req.Operation != engine.OpUpdate && req.Operation != engine.OpCreate {
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "decrypt requires update capability")
	}
	ct, _ := req.Data["ciphertext"].(string)
	plaintext, err := e.Decrypt(ctx, name, ct)
	if err != nil {
		return engine.Response{}, err
	}
	return engine.Response{Data: map[string]any{"plaintext": base64.StdEncoding.EncodeToString(plaintext)}}, nil
}

func (e *Engine) handleRewrap(ctx context.Context, req engine.Request, name string) (engine.Response, error) {
	if req.Operation != engine.OpUpdate && req.Operation != engine.OpCreate {
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "rewrap requires update capability")
	}
	ct, _ := req.Data["ciphertext"].(string)
	newCt, err := e.Rewrap(ctx, name, ct)
	if err != nil {
		return engine.Response{}, err
	}
	return engine.Response{Data: map[string]any{"ciphertext": newCt}}, nil
}

func (e *Engine) handleSign(ctx context.Context, req engine.Request, name string) (engine.Response, error) {
	if req.Operation != engine.OpUpdate && req.Operation != engine.OpCreate {
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "sign requires update capability")
	}
	data, err := base64Field(req.Data, "input")
	if err != nil {
		return engine.Response{}, err
	}
	version := intField(req.Data, "key_version")
	sig, err := e.Sign(ctx, name, data, version)
	if err != nil {
		return engine.Response{}, err
	}
	return engine.Response{Data: map[string]any{"signature": sig}}, nil
}

func (e *Engine) handleVerify(ctx context.Context, req engine.Request, name string) (engine.Response, error) {
	if req.Operation != engine.OpUpdate && req.Operation != engine.OpRead && req.Operation != engine.OpCreate {
		return engine.Response{}, apperr.New(apperr.KindInvalidArgument, "verify requires read or update capability")
	}
	data, err := base64Field(req.Data, "input")
	if err != nil {
		return engine.Response{}, err
	}
	sig, _ := req.Data["signature"].(string)
	ok, err := e.Verify(ctx, name, data, sig)
	if err != nil {
		return engine.Response{}, err
	}
	return engine.Response{Data: map[string]any{"valid": ok}}, nil
}

func intField(data map[string]any, key string) int {
	v, ok := data[key]
	if !ok {
		return 0
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
	return 0
}

func base64Field(data map[string]any, key string) ([]byte, error) {
	s, _ := data[key].(string)
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidArgument, "field %q must be base64", key)
	}
	return raw, nil
}
