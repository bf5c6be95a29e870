package service

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	accsvc "scan_bot/internal/modules/accounts/service"
	"scan_bot/internal/modules/config"
	gksvc "scan_bot/internal/modules/gatekeeper/service"
	scansvc "scan_bot/internal/modules/scanner/service"
	storesvc "scan_bot/internal/modules/store/service"
	"scan_bot/pkg/logger"
)

// Handlers — read-only поверхность движка для дашборда и мониторинга.
type Handlers struct {
	cfg       *config.Config
	store     *storesvc.Store
	gk        *gksvc.Gatekeeper
	registry  *accsvc.Registry
	scanner   *scansvc.Scanner
	startedAt time.Time
}

func NewHandlers(
	cfg *config.Config,
	store *storesvc.Store,
	gk *gksvc.Gatekeeper,
	registry *accsvc.Registry,
	scanner *scansvc.Scanner,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		store:     store,
		gk:        gk,
		registry:  registry,
		scanner:   scanner,
		startedAt: time.Now(),
	}
}

func (h *Handlers) Routes(r chi.Router) {
	r.Get("/livez", h.livez)
	r.Get("/readyz", h.readyz)
	r.Get("/healthz", h.healthz)

	r.Get("/signals", h.listSignals)
	r.Get("/accounts", h.listAccounts)
	r.Get("/accounts/{id}/rejections", h.rejections)
	r.Post("/accounts/reload", h.reload)
}

func (h *Handlers) livez(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) readyz(w http.ResponseWriter, _ *http.Request) {
	// readiness = хотя бы один цикл сканирования завершён
	if !h.scanner.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *Handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"ready":     h.scanner.Ready(),
		"uptimeSec": int64(time.Since(h.startedAt).Seconds()),
		"signals":   h.store.Len(),
		"lastScanUnix": func() int64 {
			t := h.scanner.LastScan()
			if t.IsZero() {
				return 0
			}
			return t.Unix()
		}(),
	}
	writeJSON(w, resp)
}

// GET /signals?status=ACTIVE&account=alpha — снапшот-копии из Store.
func (h *Handlers) listSignals(w http.ResponseWriter, r *http.Request) {
	var status *storesvc.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := storesvc.Status(raw)
		status = &st
	}
	account := r.URL.Query().Get("account")

	writeJSON(w, h.store.List(status, account))
}

func (h *Handlers) listAccounts(w http.ResponseWriter, _ *http.Request) {
	outcomes := h.scanner.Outcomes()

	type accountView struct {
		ID       string                  `json:"id"`
		Strategy string                  `json:"strategy"`
		Active   bool                    `json:"active"`
		Halted   bool                    `json:"halted"`
		RiskMult float64                 `json:"riskMultiplier"`
		LastScan *scansvc.AccountOutcome `json:"lastScan,omitempty"`
	}

	now := time.Now()
	out := make([]accountView, 0)
	for _, a := range h.registry.All() {
		v := accountView{
			ID:       a.ID,
			Strategy: string(a.Strategy),
			Active:   a.Active,
			Halted:   a.Halt.Halted(now),
			RiskMult: a.Halt.RiskMultiplier,
		}
		if o, ok := outcomes[a.ID]; ok {
			v.LastScan = &o
		}
		out = append(out, v)
	}
	writeJSON(w, out)
}

// GET /accounts/{id}/rejections?window=1h — "почему не торговали".
func (h *Handlers) rejections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.registry.Get(id); !ok {
		http.Error(w, "unknown account", http.StatusNotFound)
		return
	}

	window := time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "bad window", http.StatusBadRequest)
			return
		}
		window = d
	}

	writeJSON(w, h.gk.Audit().Counts(id, window, time.Now()))
}

// POST /accounts/reload — перечитать секцию аккаунтов без рестарта.
func (h *Handlers) reload(w http.ResponseWriter, _ *http.Request) {
	fresh, err := h.cfg.ReloadAccounts()
	if err != nil {
		logger.Error("[API] reload failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.registry.Swap(fresh)
	logger.Info("[API] accounts reloaded: %d", len(fresh))
	writeJSON(w, map[string]int{"accounts": len(fresh)})
}

func writeJSON(w http.ResponseWriter, v any) {
	bs, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(bs)
}
