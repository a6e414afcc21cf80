package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Hubmakerlabs/relaycore/pkg/nostr/manager"
	"github.com/Hubmakerlabs/relaycore/pkg/nostr/pool"
	"github.com/rs/cors"
	"github.com/sebest/xff"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type PoolStatus struct {
	Role      string        `json:"role"`
	Connected int           `json:"connected"`
	Relays    []pool.Status `json:"relays"`
}

type StatusReport struct {
	Uptime  string       `json:"uptime"`
	Account string       `json:"account,omitempty"`
	Pools   []PoolStatus `json:"pools"`
}

// Status serves the connection state of a manager's pools.
type Status struct {
	m       *manager.T
	started time.Time
	mux     *http.ServeMux
}

func NewStatus(m *manager.T) (s *Status) {
	s = &Status{m: m, started: time.Now(), mux: &http.ServeMux{}}
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return
}

// Handler wraps s so that browsers on any origin can read it.
func (s *Status) Handler() http.Handler { return cors.AllowAll().Handler(s) }

func (s *Status) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.T.F("%s %s from %s", r.Method, r.URL.Path, xff.GetRemoteAddr(r))
	s.mux.ServeHTTP(w, r)
}

// Report collects the current state, pools sorted by role.
func (s *Status) Report() (rep StatusReport) {
	rep.Uptime = time.Since(s.started).Round(time.Second).String()
	if sess := s.m.Session(); sess != nil {
		rep.Account = sess.Pubkey
	}
	st := s.m.Statuses()
	roles := maps.Keys(st)
	slices.Sort(roles)
	for _, role := range roles {
		ps := PoolStatus{Role: role, Relays: st[role]}
		for _, r := range ps.Relays {
			if r.Connected {
				ps.Connected++
			}
		}
		if ps.Relays == nil {
			ps.Relays = []pool.Status{}
		}
		rep.Pools = append(rep.Pools, ps)
	}
	return
}

func (s *Status) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	chk.E(enc.Encode(s.Report()))
}

// handleHealth answers 200 while at least one relay of any pool is
// connected.
func (s *Status) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, ps := range s.Report().Pools {
		if ps.Connected > 0 {
			_, err := w.Write([]byte("ok\n"))
			chk.D(err)
			return
		}
	}
	http.Error(w, "no relay connected", http.StatusServiceUnavailable)
}
