package front

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zold-go/zold/internal/domain"
	"github.com/zold-go/zold/internal/wallet"
)

func walletIDFromRequest(r *http.Request) (domain.Id, error) {
	return domain.ParseId(chi.URLParam(r, "id"))
}

func (s *Server) loadWallet(w http.ResponseWriter, r *http.Request) (domain.Id, *wallet.Wallet, bool) {
	id, err := walletIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet id")
		return 0, nil, false
	}
	wal, err := s.cfg.Wallets.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			writeError(w, http.StatusNotFound, "wallet not found")
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return id, nil, false
	}
	return id, wal, true
}

// walletView is the JSON shape for GET /wallet/{id} (§4.6 "wallet body +
// metadata").
type walletView struct {
	ID       string          `json:"id"`
	Network  string          `json:"network"`
	Protocol string          `json:"protocol"`
	Key      string          `json:"key"`
	Balance  int64           `json:"balance"`
	Digest   string          `json:"digest"`
	Mtime    string          `json:"mtime"`
	Txns     []walletTxnView `json:"txns"`
}

type walletTxnView struct {
	ID      uint16 `json:"id"`
	Date    string `json:"date"`
	Amount  int64  `json:"amount"`
	Prefix  string `json:"prefix"`
	Bnf     string `json:"bnf"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleWalletGet(w http.ResponseWriter, r *http.Request) {
	_, wal, ok := s.loadWallet(w, r)
	if !ok {
		return
	}
	key, err := wal.PubKey.Text()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	digest, err := wal.Digest()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	mtime, err := wal.Mtime()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	txns := make([]walletTxnView, len(wal.SortedTxns()))
	for i, t := range wal.SortedTxns() {
		txns[i] = walletTxnView{
			ID:      t.ID,
			Date:    t.Date.Format(time.RFC3339),
			Amount:  int64(t.Amount),
			Prefix:  t.Prefix,
			Bnf:     t.Bnf.String(),
			Details: t.Details,
		}
	}
	writeJSON(w, http.StatusOK, walletView{
		ID:       wal.ID.String(),
		Network:  wal.Network,
		Protocol: wal.Protocol,
		Key:      key,
		Balance:  int64(wal.Balance()),
		Digest:   digest,
		Mtime:    mtime.Format(time.RFC3339),
		Txns:     txns,
	})
}

// walletHeaderView is the JSON shape for GET /wallet/{id}.json (§4.6
// "header-only view").
type walletHeaderView struct {
	ID       string `json:"id"`
	Network  string `json:"network"`
	Protocol string `json:"protocol"`
	Key      string `json:"key"`
}

func (s *Server) handleWalletJSON(w http.ResponseWriter, r *http.Request) {
	_, wal, ok := s.loadWallet(w, r)
	if !ok {
		return
	}
	key, err := wal.PubKey.Text()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, walletHeaderView{
		ID:       wal.ID.String(),
		Network:  wal.Network,
		Protocol: wal.Protocol,
		Key:      key,
	})
}

func (s *Server) handleWalletText(w http.ResponseWriter, r *http.Request) {
	_, wal, ok := s.loadWallet(w, r)
	if !ok {
		return
	}
	data, err := wal.Bytes()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	_, wal, ok := s.loadWallet(w, r)
	if !ok {
		return
	}
	writePlain(w, http.StatusOK, strconv.FormatInt(int64(wal.Balance()), 10))
}

func (s *Server) handleWalletKey(w http.ResponseWriter, r *http.Request) {
	_, wal, ok := s.loadWallet(w, r)
	if !ok {
		return
	}
	key, err := wal.PubKey.Text()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, key)
}

func (s *Server) handleWalletMtime(w http.ResponseWriter, r *http.Request) {
	_, wal, ok := s.loadWallet(w, r)
	if !ok {
		return
	}
	mtime, err := wal.Mtime()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writePlain(w, http.StatusOK, mtime.UTC().Format(time.RFC3339))
}

func (s *Server) handleWalletDigest(w http.ResponseWriter, r *http.Request) {
	_, wal, ok := s.loadWallet(w, r)
	if !ok {
		return
	}
	digest, err := wal.Digest()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writePlain(w, http.StatusOK, digest)
}

// walletPutResponse is the JSON shape for a successful PUT /wallet/{id}
// (§4.6 "200 JSON on change").
type walletPutResponse struct {
	Affected []string `json:"affected"`
}

func (s *Server) handleWalletPut(w http.ResponseWriter, r *http.Request) {
	id, err := walletIDFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet id")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	sourceScore := 0
	if raw := r.Header.Get("X-Zold-Score"); raw != "" {
		if sc, ok := parseScoreHeader(raw); ok {
			sourceScore = sc.Value()
		}
	}
	affected, err := s.cfg.Entrance.Push(id, body, sourceScore, r.RemoteAddr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(affected) == 0 {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	out := make([]string, len(affected))
	for i, a := range affected {
		out[i] = a.String()
	}
	writeJSON(w, http.StatusOK, walletPutResponse{Affected: out})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
