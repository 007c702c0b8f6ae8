package rpc

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crosslock/native/order"
	"crosslock/native/secrets"
)

type orderPayload struct {
	Salt         uint64 `json:"salt"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver,omitempty"`
	MakerAsset   string `json:"makerAsset"`
	TakerAsset   string `json:"takerAsset"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
	Expiration   int64  `json:"expiration"`
	AllowedTaker string `json:"allowedTaker,omitempty"`
	Traits       uint64 `json:"traits"`
	Extension    string `json:"extension,omitempty"`
}

type submitOrderRequest struct {
	Order     orderPayload `json:"order"`
	Signature string       `json:"signature"`
}

type orderResponse struct {
	Hash      string       `json:"hash"`
	Order     orderPayload `json:"order"`
	CreatedAt int64        `json:"createdAt"`
}

func (p orderPayload) toOrder() (*order.Order, error) {
	maker, err := parseAddress(p.Maker)
	if err != nil {
		return nil, err
	}
	o := &order.Order{
		Salt:       p.Salt,
		Maker:      maker,
		MakerAsset: p.MakerAsset,
		TakerAsset: p.TakerAsset,
		Expiration: p.Expiration,
		Traits:     order.MakerTraits(p.Traits),
	}
	if p.Receiver != "" {
		if o.Receiver, err = parseAddress(p.Receiver); err != nil {
			return nil, err
		}
	}
	if p.AllowedTaker != "" {
		if o.AllowedTaker, err = parseAddress(p.AllowedTaker); err != nil {
			return nil, err
		}
	}
	if o.MakingAmount, err = parseAmount(p.MakingAmount); err != nil {
		return nil, err
	}
	if o.TakingAmount, err = parseAmount(p.TakingAmount); err != nil {
		return nil, err
	}
	if p.Extension != "" {
		if o.Extension, err = parseBytes(p.Extension); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func payloadFrom(o *order.Order) orderPayload {
	p := orderPayload{
		Salt:         o.Salt,
		Maker:        hexAddress(o.Maker),
		MakerAsset:   o.MakerAsset,
		TakerAsset:   o.TakerAsset,
		MakingAmount: amountString(o.MakingAmount),
		TakingAmount: amountString(o.TakingAmount),
		Expiration:   o.Expiration,
		Traits:       uint64(o.Traits),
	}
	if o.Receiver != ([20]byte{}) {
		p.Receiver = hexAddress(o.Receiver)
	}
	if o.AllowedTaker != ([20]byte{}) {
		p.AllowedTaker = hexAddress(o.AllowedTaker)
	}
	if len(o.Extension) > 0 {
		p.Extension = fmt.Sprintf("%x", o.Extension)
	}
	return p
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	o, err := req.Order.toOrder()
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	sig, err := parseBytes(req.Signature)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	hash, err := s.book.Submit(o, sig)
	if err != nil {
		s.writeError(w, err)
		return
	}
	stored, _, err := s.book.Get(hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, orderResponse{
		Hash:      hexHash(hash),
		Order:     payloadFrom(stored),
		CreatedAt: stored.CreatedAt,
	})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []*order.Order
		err    error
	)
	switch {
	case r.URL.Query().Get("maker") != "":
		var maker [20]byte
		if maker, err = parseAddress(r.URL.Query().Get("maker")); err != nil {
			s.writeBadRequest(w, err)
			return
		}
		orders, err = s.book.ByMaker(maker)
	case r.URL.Query().Get("makerAsset") != "" || r.URL.Query().Get("takerAsset") != "":
		orders, err = s.book.ByAssetPair(r.URL.Query().Get("makerAsset"), r.URL.Query().Get("takerAsset"))
	default:
		orders, err = s.book.Active()
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse{Hash: hexHash(o.Hash()), Order: payloadFrom(o), CreatedAt: o.CreatedAt})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHash(chi.URLParam(r, "hash"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	o, ok, err := s.book.Get(hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeError(w, order.ErrOrderNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, orderResponse{Hash: hexHash(hash), Order: payloadFrom(o), CreatedAt: o.CreatedAt})
}

type remainingResponse struct {
	Hash      string `json:"hash"`
	Remaining string `json:"remaining"`
}

func (s *Server) orderRemaining(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHash(chi.URLParam(r, "hash"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	remaining, err := s.book.Remaining(hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, remainingResponse{Hash: hexHash(hash), Remaining: amountString(remaining)})
}

type secretProofPayload struct {
	Index uint32   `json:"index"`
	Leaf  string   `json:"leaf"`
	Path  []string `json:"path"`
}

type fillOrderRequest struct {
	Taker  string              `json:"taker"`
	Amount string              `json:"amount"`
	Proof  *secretProofPayload `json:"proof,omitempty"`
}

type fillOrderResponse struct {
	Hash         string `json:"hash"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
	Remaining    string `json:"remaining"`
	SecretIndex  uint32 `json:"secretIndex,omitempty"`
	HasSecret    bool   `json:"hasSecret"`
}

func (p *secretProofPayload) toProof() (*secrets.Proof, error) {
	leaf, err := parseHash(p.Leaf)
	if err != nil {
		return nil, err
	}
	path := make([][32]byte, 0, len(p.Path))
	for _, node := range p.Path {
		parsed, err := parseHash(node)
		if err != nil {
			return nil, err
		}
		path = append(path, parsed)
	}
	return &secrets.Proof{Index: p.Index, Leaf: leaf, Path: path}, nil
}

func (s *Server) fillOrder(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHash(chi.URLParam(r, "hash"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req fillOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	taker, err := parseAddress(req.Taker)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var proof *secrets.Proof
	if req.Proof != nil {
		if proof, err = req.Proof.toProof(); err != nil {
			s.writeBadRequest(w, err)
			return
		}
	}
	result, err := s.book.Fill(taker, hash, amount, proof)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fillOrderResponse{
		Hash:         hexHash(result.OrderHash),
		MakingAmount: amountString(result.MakingAmount),
		TakingAmount: amountString(result.TakingAmount),
		Remaining:    amountString(result.Remaining),
		SecretIndex:  result.SecretIndex,
		HasSecret:    result.HasSecret,
	})
}

type cancelOrderRequest struct {
	Maker string `json:"maker"`
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHash(chi.URLParam(r, "hash"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req cancelOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	maker, err := parseAddress(req.Maker)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.book.Cancel(maker, hash); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type cancelBatchRequest struct {
	Maker  string   `json:"maker"`
	Hashes []string `json:"hashes"`
}

type cancelBatchResponse struct {
	Results map[string]string `json:"results"`
}

func (s *Server) cancelOrderBatch(w http.ResponseWriter, r *http.Request) {
	var req cancelBatchRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	maker, err := parseAddress(req.Maker)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	hashes := make([][32]byte, 0, len(req.Hashes))
	for _, h := range req.Hashes {
		parsed, err := parseHash(h)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		hashes = append(hashes, parsed)
	}
	results := s.book.CancelBatch(maker, hashes)
	out := cancelBatchResponse{Results: make(map[string]string, len(results))}
	for hash, cancelErr := range results {
		status := "cancelled"
		if cancelErr != nil {
			status = cancelErr.Error()
		}
		out.Results[hexHash(hash)] = status
	}
	s.writeJSON(w, http.StatusOK, out)
}

type statsResponse struct {
	OrdersCreated   uint64            `json:"ordersCreated"`
	OrdersFilled    uint64            `json:"ordersFilled"`
	OrdersCancelled uint64            `json:"ordersCancelled"`
	VolumeByAsset   map[string]string `json:"volumeByAsset"`
}

func (s *Server) orderStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.book.Statistics()
	out := statsResponse{
		OrdersCreated:   stats.OrdersCreated,
		OrdersFilled:    stats.OrdersFilled,
		OrdersCancelled: stats.OrdersCancelled,
		VolumeByAsset:   make(map[string]string, len(stats.VolumeByAsset)),
	}
	for asset, volume := range stats.VolumeByAsset {
		out.VolumeByAsset[asset] = amountString(volume)
	}
	s.writeJSON(w, http.StatusOK, out)
}
