package front

import (
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"
)

// nodeStatus is the JSON shape for GET / (§4.6 "JSON node status").
type nodeStatus struct {
	Version  string         `json:"version"`
	Network  string         `json:"network"`
	Protocol string         `json:"protocol"`
	Score    int            `json:"score"`
	Pid      int            `json:"pid"`
	CPUs     int            `json:"cpus"`
	Uptime   string         `json:"uptime"`
	Threads  threadCounts   `json:"threads"`
	Wallets  int            `json:"wallets"`
	Remotes  int            `json:"remotes"`
	Nscore   int            `json:"nscore"`
	Farm     farmStatus     `json:"farm"`
	Entrance entranceStatus `json:"entrance"`
}

type threadCounts struct {
	Farm      int `json:"farm"`
	Goroutine int `json:"goroutine"`
}

type farmStatus struct {
	Best int `json:"best"`
}

type entranceStatus struct {
	Pushes int64 `json:"pushes"`
	Merges int64 `json:"merges"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	wallets, remotesCount, nscore := 0, 0, 0
	if s.cfg.Wallets != nil {
		if n, err := s.cfg.Wallets.Count(); err == nil {
			wallets = n
		}
	}
	if s.cfg.Remotes != nil {
		all := s.cfg.Remotes.All()
		remotesCount = len(all)
		for _, rem := range all {
			nscore += rem.Score
		}
	}
	farmBest := 0
	if s.cfg.Farm != nil {
		farmBest = len(s.cfg.Farm.Best())
	}
	var ent entranceStatus
	if s.cfg.Entrance != nil {
		st := s.cfg.Entrance.Stats()
		ent = entranceStatus{Pushes: st.Pushes, Merges: st.Merges}
	}

	writeJSON(w, http.StatusOK, nodeStatus{
		Version:  s.cfg.Version,
		Network:  s.cfg.Network,
		Protocol: s.cfg.Protocol,
		Score:    s.currentScoreValue(),
		Pid:      os.Getpid(),
		CPUs:     runtime.NumCPU(),
		Uptime:   time.Since(s.cfg.Started).String(),
		Threads: threadCounts{
			Farm:      farmBest,
			Goroutine: runtime.NumGoroutine(),
		},
		Wallets:  wallets,
		Remotes:  remotesCount,
		Nscore:   nscore,
		Farm:     farmStatus{Best: farmBest},
		Entrance: ent,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writePlain(w, http.StatusOK, s.cfg.Version)
}

func (s *Server) handlePid(w http.ResponseWriter, r *http.Request) {
	writePlain(w, http.StatusOK, strconv.Itoa(os.Getpid()))
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Farm == nil {
		writePlain(w, http.StatusOK, "")
		return
	}
	best := s.cfg.Farm.Best()
	if len(best) == 0 {
		writePlain(w, http.StatusOK, "")
		return
	}
	writePlain(w, http.StatusOK, best[0].String())
}

func (s *Server) handleRemotes(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Remotes == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Remotes.All())
}

func (s *Server) handleFarm(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Farm == nil {
		writePlain(w, http.StatusOK, "")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.cfg.Farm.ToText()))
}

func (s *Server) handleMetronome(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Metronome == nil {
		writePlain(w, http.StatusOK, "not running")
		return
	}
	writePlain(w, http.StatusOK, s.cfg.Metronome.ToText())
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	writePlain(w, http.StatusOK, "User-agent: *\nDisallow:")
}

// Favicon logo bands (§4.6): a score of 16+ is a healthy peer (green),
// 4-15 is getting there (orange), below 4 is weak (red).
const (
	logoGreen  = "/images/logo-green.png"
	logoOrange = "/images/logo-orange.png"
	logoRed    = "/images/logo-red.png"
)

func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	value := s.currentScoreValue()
	logo := logoRed
	switch {
	case value >= 16:
		logo = logoGreen
	case value >= 4:
		logo = logoOrange
	}
	http.Redirect(w, r, logo, http.StatusFound)
}
