// Package transport implements the HTTP binding for the transport
// contract named in §6: one handler maps (method, path, token header,
// body) onto a pipeline.Request, and the pipeline's response or error
// onto a status code and JSON body.
package transport

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zvault/zvault"
	"github.com/zvault/zvault/internal/autounseal"
	"github.com/zvault/zvault/internal/crypto"
	"github.com/zvault/zvault/internal/engine"
	"github.com/zvault/zvault/internal/pipeline"
)

// decodeShare parses a base64-encoded Shamir share, the form operators
// paste from the output of Initialize.
func decodeShare(encoded string) (crypto.Share, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return crypto.Share{}, err
	}
	return crypto.DecodeShare(raw)
}

// TokenHeader is the HTTP header carrying the caller's token, the same
// convention HashiCorp Vault's own API uses.
const TokenHeader = "X-Vault-Token"

// NewRouter builds the chi router serving srv's administrative and
// mounted-engine paths.
func NewRouter(srv *zvault.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/sys/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/sys/health", handleHealth)
	r.Get("/v1/sys/seal-status", handleSealStatus(srv))
	r.Put("/v1/sys/init", handleInitialize(srv))
	r.Put("/v1/sys/unseal", handleSubmitShare(srv))
	r.Route("/v1/{rest:.*}", func(r chi.Router) {
		r.Get("/", handleEngine(srv, engine.OpRead))
		r.Post("/", handleEngine(srv, engine.OpCreate))
		r.Put("/", handleEngine(srv, engine.OpUpdate))
		r.Delete("/", handleEngine(srv, engine.OpDelete))
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := zvault.HTTPStatus(err)
	body := map[string]any{"errors": []string{err.Error()}}
	if zvault.IsSealed(err) {
		body["sealed"] = true
	}
	writeJSON(w, status, body)
}

// handleHealth reports KMS auto-unseal reliability stats and recent
// security events, unauthenticated like /sys/seal-status since an
// operator needs it to diagnose a vault that can't take tokens yet.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, autounseal.Health())
}

func handleSealStatus(srv *zvault.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, srv.Status())
	}
}

func handleInitialize(srv *zvault.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SecretShares    int `json:"secret_shares"`
			SecretThreshold int `json:"secret_threshold"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, err)
			return
		}
		result, err := srv.Initialize(r.Context(), body.SecretShares, body.SecretThreshold)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleSubmitShare(srv *zvault.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, err)
			return
		}
		share, err := decodeShare(body.Key)
		if err != nil {
			writeError(w, err)
			return
		}
		status, err := srv.SubmitShare(r.Context(), share)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func handleEngine(srv *zvault.Server, op engine.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/v1/")

		operation := op
		if op == engine.OpRead && r.URL.Query().Get("list") == "true" {
			operation = engine.OpList
		}

		var data map[string]any
		if op == engine.OpCreate || op == engine.OpUpdate || op == engine.OpDelete {
			if r.ContentLength != 0 {
				if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
					writeError(w, err)
					return
				}
			}
		}

		resp, err := srv.Handle(r.Context(), pipeline.Request{
			Token:     r.Header.Get(TokenHeader),
			Path:      path,
			Operation: operation,
			Data:      data,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp.Data)
	}
}
