// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package webserver

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"decred.org/xcpgate/server/composer"
	"decred.org/xcpgate/server/gateway"
	"github.com/go-chi/chi/v5"
)

// Control parameters of an action request.
const (
	paramAction     = "action"
	paramUnsigned   = "unsigned"
	paramPassphrase = "passphrase"
	paramPubKey     = "pubkey"
)

// handleAction handles the POST /action request. The response is always HTTP
// 200 with a TxResult body.
func (s *WebServer) handleAction(w http.ResponseWriter, r *http.Request) {
	params, err := requestParams(w, r)
	if err != nil {
		log.Debugf("Bad action request from %s: %v", r.RemoteAddr, err)
		writeJSON(w, &composer.TxResult{Message: "invalid request body: " + err.Error()})
		return
	}
	res := s.gw.Submit(r.Context(), &gateway.SubmitRequest{
		Action:     strings.TrimSpace(params.Get(paramAction)),
		Params:     params,
		Unsigned:   params.Get(paramUnsigned) == "1",
		Passphrase: params.Get(paramPassphrase),
		PubKey:     strings.TrimSpace(params.Get(paramPubKey)),
	})
	writeJSON(w, res)
}

// requestParams reads the parameters from a form or JSON object body.
func requestParams(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.Form, nil
	}

	var obj map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		return nil, err
	}
	params := make(url.Values, len(obj))
	for k, raw := range obj {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			params.Set(k, str)
			continue
		}
		// Numbers and booleans are accepted as their literal text.
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		switch v.(type) {
		case float64, bool:
			params.Set(k, string(raw))
		case nil:
		default:
			return nil, fmt.Errorf("parameter %s is not a string", k)
		}
	}
	return params, nil
}

// handleSource returns a handler for the source lookup of the action, either
// btcpay or cancel.
func (s *WebServer) handleSource(actionName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.gw.Source(r.Context(), actionName, chi.URLParam(r, "id")))
	}
}

type addressResponse struct {
	Success bool                  `json:"success"`
	Message *composer.AddressInfo `json:"message"`
}

// handleAddress handles the GET /addresses/{address} request.
func (s *WebServer) handleAddress(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	ai, err := s.gw.AddressInfo(r.Context(), addr)
	if err != nil {
		log.Debugf("Address lookup for %s failed: %v", addr, err)
		writeJSON(w, &composer.TxResult{Message: gateway.ErrorMessage(err)})
		return
	}
	writeJSON(w, &addressResponse{Success: true, Message: ai})
}

// handleWallet handles the GET /wallet request.
func (s *WebServer) handleWallet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.gw.WalletSnapshot(r.Context())
	if err != nil {
		log.Errorf("Wallet snapshot error: %v", err)
		writeJSONWithStatus(w, &composer.TxResult{Message: gateway.ErrorMessage(err)}, http.StatusInternalServerError)
		return
	}
	writeJSON(w, snap)
}
