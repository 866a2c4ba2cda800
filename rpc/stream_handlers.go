package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"streamvault/core/types"
	"streamvault/crypto"
	"streamvault/native/stream"
)

const (
	codeStreamInternal          = -32060
	codeStreamInvalidParams     = -32061
	codeStreamNothingToWithdraw = -32062
	codeStreamOngoing           = -32063
	codeStreamNotFound          = -32064
	codeStreamForbidden         = -32065
	codeStreamInsufficient      = -32066
	codeStreamConflict          = -32067
)

type streamCreateParams struct {
	Payer     string `json:"payer"`
	Payee     string `json:"payee"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	StartTime uint64 `json:"startTime"`
	Duration  uint64 `json:"duration"`
}

type streamWithdrawParams struct {
	Caller string `json:"caller"`
	Payer  string `json:"payer"`
	Token  string `json:"token"`
	Count  uint64 `json:"count"`
}

type streamCancelParams struct {
	Caller string `json:"caller"`
	Payee  string `json:"payee"`
	Token  string `json:"token"`
	Count  uint64 `json:"count"`
}

type streamReplenishParams struct {
	Caller    string `json:"caller"`
	Payee     string `json:"payee"`
	Token     string `json:"token"`
	Count     uint64 `json:"count"`
	Amount    string `json:"amount"`
	StartTime uint64 `json:"startTime"`
	Duration  uint64 `json:"duration"`
}

type streamGetParams struct {
	Payer string `json:"payer"`
	Payee string `json:"payee"`
	Token string `json:"token"`
	Count uint64 `json:"count"`
}

type balanceParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

type mintParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

type streamJSON struct {
	Payer     string `json:"payer"`
	Payee     string `json:"payee"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	StartTime uint64 `json:"startTime"`
	Duration  uint64 `json:"duration"`
	Streamed  string `json:"streamed"`
	Remaining string `json:"remaining"`
	Count     uint64 `json:"count"`
}

type initializeResult struct {
	Count uint64 `json:"count"`
}

type withdrawResult struct {
	Amount string     `json:"amount"`
	Stream streamJSON `json:"stream"`
}

type cancelResult struct {
	PayeePayout string `json:"payeePayout"`
	PayerRefund string `json:"payerRefund"`
}

type balanceResult struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type mintResult struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Minted  string `json:"minted"`
}

type eventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func streamToJSON(s *stream.Stream) streamJSON {
	return streamJSON{
		Payer:     crypto.NewAddress(crypto.SVTPrefix, s.Payer[:]).String(),
		Payee:     crypto.NewAddress(crypto.SVTPrefix, s.Payee[:]).String(),
		Token:     s.Token,
		Amount:    strconv.FormatUint(s.Amount, 10),
		StartTime: s.StartTime,
		Duration:  s.Duration,
		Streamed:  strconv.FormatUint(s.Streamed, 10),
		Remaining: strconv.FormatUint(s.Remaining(), 10),
		Count:     s.Count,
	}
}

// writeStreamError maps lifecycle sentinels onto the method-specific error
// codes carried on the wire.
func writeStreamError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, stream.ErrZeroAmount),
		errors.Is(err, stream.ErrZeroDuration),
		errors.Is(err, stream.ErrInvalidTimestamp),
		errors.Is(err, stream.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, id, codeStreamInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, stream.ErrNothingToWithdraw):
		writeError(w, http.StatusConflict, id, codeStreamNothingToWithdraw, "nothing_to_withdraw", err.Error())
	case errors.Is(err, stream.ErrOngoingStream):
		writeError(w, http.StatusConflict, id, codeStreamOngoing, "ongoing_stream", err.Error())
	case errors.Is(err, stream.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeStreamNotFound, "not_found", err.Error())
	case errors.Is(err, stream.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeStreamForbidden, "forbidden", err.Error())
	case errors.Is(err, stream.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, id, codeStreamInsufficient, "insufficient_funds", err.Error())
	case errors.Is(err, stream.ErrAlreadyInitialized):
		writeError(w, http.StatusConflict, id, codeStreamConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeStreamInternal, "internal", err.Error())
	}
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseUint64Amount(value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("amount required")
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %w", err)
	}
	return amount, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if parsed.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return parsed, nil
}

func (s *Server) handleStreamInitialize(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	count, err := s.node.Initialize()
	if err != nil {
		writeStreamError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, initializeResult{Count: count})
}

func (s *Server) handleStreamCreate(w http.ResponseWriter, req *RPCRequest) {
	var params streamCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	payer, err := parseBech32Address(params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	payee, err := parseBech32Address(params.Payee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseUint64Amount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	created, err := s.node.StreamCreate(payer, payee, params.Token, amount, params.StartTime, params.Duration)
	if err != nil {
		writeStreamError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, streamToJSON(created))
}

func (s *Server) handleStreamWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var params streamWithdrawParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	payer, err := parseBech32Address(params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.node.StreamWithdraw(caller, payer, params.Token, params.Count)
	if err != nil {
		writeStreamError(w, req.ID, err)
		return
	}
	updated, err := s.node.StreamGet(payer, caller, params.Token, params.Count)
	if err != nil {
		writeStreamError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, withdrawResult{
		Amount: strconv.FormatUint(amount, 10),
		Stream: streamToJSON(updated),
	})
}

func (s *Server) handleStreamCancel(w http.ResponseWriter, req *RPCRequest) {
	var params streamCancelParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	payee, err := parseBech32Address(params.Payee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	payeePayout, payerRefund, err := s.node.StreamCancel(caller, payee, params.Token, params.Count)
	if err != nil {
		writeStreamError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, cancelResult{
		PayeePayout: strconv.FormatUint(payeePayout, 10),
		PayerRefund: strconv.FormatUint(payerRefund, 10),
	})
}

func (s *Server) handleStreamReplenish(w http.ResponseWriter, req *RPCRequest) {
	var params streamReplenishParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	payee, err := parseBech32Address(params.Payee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseUint64Amount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	updated, err := s.node.StreamReplenish(caller, payee, params.Token, params.Count, amount, params.StartTime, params.Duration)
	if err != nil {
		writeStreamError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, streamToJSON(updated))
}

func (s *Server) handleStreamGet(w http.ResponseWriter, req *RPCRequest) {
	var params streamGetParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	payer, err := parseBech32Address(params.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	payee, err := parseBech32Address(params.Payee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	found, err := s.node.StreamGet(payer, payee, params.Token, params.Count)
	if err != nil {
		writeStreamError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, streamToJSON(found))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var params balanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.BalanceOf(addr, params.Token)
	if err != nil {
		writeStreamError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{
		Address: params.Address,
		Token:   strings.ToUpper(strings.TrimSpace(params.Token)),
		Balance: balance.String(),
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	events := s.node.Events()
	out := make([]eventJSON, 0, len(events))
	for _, evt := range events {
		out = append(out, eventJSON{Type: evt.Type, Attributes: cloneAttributes(evt)})
	}
	writeResult(w, req.ID, out)
}

func cloneAttributes(evt types.Event) map[string]string {
	attrs := make(map[string]string, len(evt.Attributes))
	for k, v := range evt.Attributes {
		attrs[k] = v
	}
	return attrs
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) {
	var params mintParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeStreamInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.MintBalance(addr, params.Token, amount); err != nil {
		writeStreamError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, mintResult{
		Address: params.Address,
		Token:   strings.ToUpper(strings.TrimSpace(params.Token)),
		Minted:  amount.String(),
	})
}
