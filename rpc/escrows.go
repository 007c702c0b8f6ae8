package rpc

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crosslock/native/escrow"
)

type timelocksPayload struct {
	DeployedAt              int64 `json:"deployedAt"`
	WithdrawalStart         int64 `json:"withdrawalStart"`
	PublicWithdrawalStart   int64 `json:"publicWithdrawalStart"`
	CancellationStart       int64 `json:"cancellationStart"`
	PublicCancellationStart int64 `json:"publicCancellationStart"`
}

type immutablesPayload struct {
	OrderHash     string           `json:"orderHash"`
	Hashlock      string           `json:"hashlock"`
	Maker         string           `json:"maker"`
	Taker         string           `json:"taker"`
	Token         string           `json:"token"`
	Amount        string           `json:"amount"`
	SafetyDeposit string           `json:"safetyDeposit"`
	Leg           string           `json:"leg"`
	Timelocks     timelocksPayload `json:"timelocks"`
}

type createEscrowRequest struct {
	Immutables immutablesPayload `json:"immutables"`
	Depositor  string            `json:"depositor,omitempty"`
}

type escrowResponse struct {
	ID         string            `json:"id"`
	Immutables immutablesPayload `json:"immutables"`
	Depositor  string            `json:"depositor"`
	State      string            `json:"state"`
	CreatedAt  int64             `json:"createdAt"`
	UpdatedAt  int64             `json:"updatedAt"`
}

func (p immutablesPayload) toImmutables() (*escrow.Immutables, error) {
	orderHash, err := parseHash(p.OrderHash)
	if err != nil {
		return nil, err
	}
	hashlock, err := parseHash(p.Hashlock)
	if err != nil {
		return nil, err
	}
	maker, err := parseAddress(p.Maker)
	if err != nil {
		return nil, err
	}
	taker, err := parseAddress(p.Taker)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	deposit, err := parseAmount(p.SafetyDeposit)
	if err != nil {
		return nil, err
	}
	leg, err := parseLeg(p.Leg)
	if err != nil {
		return nil, err
	}
	return &escrow.Immutables{
		OrderHash:     orderHash,
		Hashlock:      hashlock,
		Maker:         maker,
		Taker:         taker,
		Token:         p.Token,
		Amount:        amount,
		SafetyDeposit: deposit,
		Leg:           leg,
		Timelocks: escrow.Timelocks{
			DeployedAt:              p.Timelocks.DeployedAt,
			WithdrawalStart:         p.Timelocks.WithdrawalStart,
			PublicWithdrawalStart:   p.Timelocks.PublicWithdrawalStart,
			CancellationStart:       p.Timelocks.CancellationStart,
			PublicCancellationStart: p.Timelocks.PublicCancellationStart,
		},
	}, nil
}

func parseLeg(s string) (escrow.Leg, error) {
	switch s {
	case "source":
		return escrow.LegSource, nil
	case "destination":
		return escrow.LegDestination, nil
	default:
		return escrow.LegSource, fmt.Errorf("invalid leg %q: want source or destination", s)
	}
}

func escrowPayload(esc *escrow.Escrow) escrowResponse {
	im := esc.Immutables
	return escrowResponse{
		ID: hexHash(esc.ID),
		Immutables: immutablesPayload{
			OrderHash:     hexHash(im.OrderHash),
			Hashlock:      hexHash(im.Hashlock),
			Maker:         hexAddress(im.Maker),
			Taker:         hexAddress(im.Taker),
			Token:         im.Token,
			Amount:        amountString(im.Amount),
			SafetyDeposit: amountString(im.SafetyDeposit),
			Leg:           im.Leg.String(),
			Timelocks: timelocksPayload{
				DeployedAt:              im.Timelocks.DeployedAt,
				WithdrawalStart:         im.Timelocks.WithdrawalStart,
				PublicWithdrawalStart:   im.Timelocks.PublicWithdrawalStart,
				CancellationStart:       im.Timelocks.CancellationStart,
				PublicCancellationStart: im.Timelocks.PublicCancellationStart,
			},
		},
		Depositor: hexAddress(esc.Depositor),
		State:     esc.State.String(),
		CreatedAt: esc.CreatedAt,
		UpdatedAt: esc.UpdatedAt,
	}
}

func (s *Server) createEscrow(w http.ResponseWriter, r *http.Request) {
	var req createEscrowRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	im, err := req.Immutables.toImmutables()
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var depositor [20]byte
	if req.Depositor != "" {
		if depositor, err = parseAddress(req.Depositor); err != nil {
			s.writeBadRequest(w, err)
			return
		}
	}
	esc, err := s.registry.Create(im, depositor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, escrowPayload(esc))
}

func (s *Server) listEscrows(w http.ResponseWriter, r *http.Request) {
	var (
		escrows []*escrow.Escrow
		err     error
	)
	if raw := r.URL.Query().Get("orderHash"); raw != "" {
		var orderHash [32]byte
		if orderHash, err = parseHash(raw); err != nil {
			s.writeBadRequest(w, err)
			return
		}
		escrows, err = s.registry.ByOrder(orderHash)
	} else {
		escrows, err = s.registry.List()
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]escrowResponse, 0, len(escrows))
	for _, esc := range escrows {
		out = append(out, escrowPayload(esc))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	esc, ok, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeError(w, escrow.ErrEscrowNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, escrowPayload(esc))
}

type escrowStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Phase  string `json:"phase"`
}

func (s *Server) escrowStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	status, err := s.registry.Status(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	phase, err := s.registry.Phase(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, escrowStatusResponse{
		ID:     hexHash(id),
		Status: status.String(),
		Phase:  phase.String(),
	})
}

type fundEscrowRequest struct {
	From string `json:"from"`
}

func (s *Server) fundEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req fundEscrowRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.registry.Fund(id, from); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "funded"})
}

type withdrawEscrowRequest struct {
	Caller string `json:"caller"`
	Secret string `json:"secret"`
}

func (s *Server) withdrawEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req withdrawEscrowRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	secret, err := parseBytes(req.Secret)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.registry.Withdraw(id, caller, secret); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

type cancelEscrowRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) cancelEscrow(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req cancelEscrowRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.registry.Cancel(id, caller); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type planTimelocksRequest struct {
	DeployedAt  int64          `json:"deployedAt"`
	Source      stagesPayload  `json:"source"`
	Destination *stagesPayload `json:"destination,omitempty"`
}

type stagesPayload struct {
	WithdrawalSeconds         int64 `json:"withdrawalSeconds"`
	PublicWithdrawalSeconds   int64 `json:"publicWithdrawalSeconds"`
	CancellationSeconds       int64 `json:"cancellationSeconds"`
	PublicCancellationSeconds int64 `json:"publicCancellationSeconds"`
}

type planTimelocksResponse struct {
	Source      timelocksPayload `json:"source"`
	Destination timelocksPayload `json:"destination"`
	OK          bool             `json:"ok"`
	Violations  []string         `json:"violations,omitempty"`
}

func (p stagesPayload) toDurations() escrow.StageDurations {
	return escrow.StageDurations{
		Withdrawal:         p.WithdrawalSeconds,
		PublicWithdrawal:   p.PublicWithdrawalSeconds,
		Cancellation:       p.CancellationSeconds,
		PublicCancellation: p.PublicCancellationSeconds,
	}
}

func timelocksFrom(tl escrow.Timelocks) timelocksPayload {
	return timelocksPayload{
		DeployedAt:              tl.DeployedAt,
		WithdrawalStart:         tl.WithdrawalStart,
		PublicWithdrawalStart:   tl.PublicWithdrawalStart,
		CancellationStart:       tl.CancellationStart,
		PublicCancellationStart: tl.PublicCancellationStart,
	}
}

func (s *Server) planTimelocks(w http.ResponseWriter, r *http.Request) {
	var req planTimelocksRequest
	if err := s.decode(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	src := req.Source.toDurations()
	dst := escrow.DefaultDestinationDurations()
	if req.Destination != nil {
		dst = req.Destination.toDurations()
	}
	if (src == escrow.StageDurations{}) {
		src = escrow.DefaultSourceDurations()
	}
	plan, validation := s.planner.Plan(req.DeployedAt, src, dst)
	s.writeJSON(w, http.StatusOK, planTimelocksResponse{
		Source:      timelocksFrom(plan.Src),
		Destination: timelocksFrom(plan.Dst),
		OK:          validation.OK,
		Violations:  validation.Violations,
	})
}
