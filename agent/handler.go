package agent

// policyHandler adapts the Agent's Config plus one caller-supplied
// credential-cache hook into the reqctx.Handler contract a Request Context
// consults (spec §4.4, §4.6 step 4). Built fresh per Submit so a caller can
// vary the credential callback per request without touching Config.
type policyHandler struct {
	cfg      *Config
	onCreds  func(uri string, authMask int)
}

func (h *policyHandler) HeaderByteCap() int   { return h.cfg.HeaderByteCap }
func (h *policyHandler) AutoRedirect() bool   { return h.cfg.AutoRedirect }
func (h *policyHandler) PreAuthenticate() bool { return h.cfg.PreAuthenticate }

func (h *policyHandler) TransferCredentialsToCache(uri string, authMask int) {
	if h.onCreds != nil {
		h.onCreds(uri, authMask)
	}
}
