// Package router dispatches decoded client messages to the rental engine and
// shapes the replies. It owns the cross-cutting request rules: identity comes
// from the session and never from a request body, unauthenticated writes are
// refused, entry checks are rate limited per wallet, and a handler panic
// becomes a server error reply instead of a dead connection.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tanner253/ClubPengu-sub005/internal/access"
	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/logger"
	"github.com/Tanner253/ClubPengu-sub005/internal/protocol"
	"github.com/Tanner253/ClubPengu-sub005/internal/ratelimit"
	"github.com/Tanner253/ClubPengu-sub005/internal/rental"
	"github.com/Tanner253/ClubPengu-sub005/internal/store"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

// Service is the rental engine surface the router dispatches to
type Service interface {
	CanRent(ctx context.Context, caller domain.Identity, spaceID string) (*rental.CanRentResult, error)
	StartRental(ctx context.Context, caller domain.Identity, spaceID, signature string) (*rental.RentResult, error)
	PayRent(ctx context.Context, caller domain.Identity, spaceID, signature string) (*rental.PayRentResult, error)
	PayEntryFee(ctx context.Context, caller domain.Identity, spaceID, signature string) (*rental.PayEntryFeeResult, error)
	UpdateSettings(ctx context.Context, caller domain.Identity, spaceID string, patch protocol.SettingsPatch) (*rental.UpdateSettingsResult, error)
	LeaveSpace(ctx context.Context, caller domain.Identity, spaceID string) (*rental.LeaveResult, error)
	EvaluateEntry(ctx context.Context, visitorWallet, spaceID string) (*schema.Space, access.Decision, error)
	RecordVisit(ctx context.Context, spaceID string) error
}

// Presence records which session is inside which space
type Presence interface {
	Enter(sessionID, wallet, spaceID string)
	Leave(sessionID string)
}

// Router maps request types to handlers
type Router struct {
	service  Service
	store    store.Store
	limiter  *ratelimit.PerWallet
	presence Presence
}

// NewRouter creates a message router
func NewRouter(service Service, st store.Store, limiter *ratelimit.PerWallet, presence Presence) *Router {
	return &Router{service: service, store: st, limiter: limiter, presence: presence}
}

type handlerFunc func(ctx context.Context, caller domain.Identity, raw []byte) []byte

// Handle dispatches one raw client message and returns the marshaled reply.
// A nil reply means the request is fire-and-forget.
func (r *Router) Handle(ctx context.Context, caller domain.Identity, sessionID string, raw []byte) (reply []byte) {
	base, err := protocol.DecodeBase(raw)
	if err != nil || base.Type == "" {
		return marshal(errorReply("", "", domain.CodeUnknownRequestType))
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCtx(ctx, fmt.Errorf("handler panicked: %v", rec),
				zap.String("request_type", base.Type),
				zap.String("session_id", sessionID),
			)
			reply = marshal(errorReply(base.Type, "", domain.CodeServerError))
		}
	}()

	switch base.Type {
	case protocol.TypeSpaceList:
		return r.handleSpaceList(ctx)
	case protocol.TypeSpaceCanRent:
		return r.authenticated(ctx, caller, base.Type, raw, r.handleCanRent)
	case protocol.TypeSpaceRent:
		return r.authenticated(ctx, caller, base.Type, raw, r.handleRent)
	case protocol.TypeSpacePayRent:
		return r.authenticated(ctx, caller, base.Type, raw, r.handlePayRent)
	case protocol.TypeSpaceCanEnter:
		return r.handleEntryCheck(ctx, caller, raw, protocol.TypeSpaceCanEnter)
	case protocol.TypeSpaceEligibility:
		return r.handleEntryCheck(ctx, caller, raw, protocol.TypeSpaceEligibility)
	case protocol.TypeSpacePayEntry:
		return r.authenticated(ctx, caller, base.Type, raw, r.handlePayEntry)
	case protocol.TypeSpaceSettings:
		return r.authenticated(ctx, caller, base.Type, raw, r.handleUpdateSettings)
	case protocol.TypeSpaceLeave:
		return r.authenticated(ctx, caller, base.Type, raw, r.handleLeave)
	case protocol.TypeSpaceVisit:
		r.handleVisit(ctx, caller, sessionID, raw)
		return nil
	default:
		return marshal(errorReply(base.Type, "", domain.CodeUnknownRequestType))
	}
}

// authenticated refuses writes from sessions without a verified identity
func (r *Router) authenticated(ctx context.Context, caller domain.Identity, requestType string, raw []byte, handler handlerFunc) []byte {
	if !caller.IsAuthenticated || caller.WalletAddress == "" {
		return marshal(errorReply(requestType, spaceIDOf(raw), domain.CodeNotAuthenticated))
	}
	return handler(ctx, caller, raw)
}

func (r *Router) handleSpaceList(ctx context.Context) []byte {
	spaces, err := r.store.ListSpaces(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to list spaces: %w", err))
		return marshal(errorReply(protocol.TypeSpaceList, "", domain.CodeServerError))
	}
	views := make([]*protocol.PublicSpace, 0, len(spaces))
	for _, space := range spaces {
		views = append(views, protocol.PublicView(space))
	}
	return marshal(protocol.SpaceListResponse{Type: protocol.TypeSpaceList, Spaces: views})
}

func (r *Router) handleCanRent(ctx context.Context, caller domain.Identity, raw []byte) []byte {
	var req protocol.SpaceRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.SpaceID == "" {
		return marshal(errorReply(protocol.TypeSpaceCanRent, "", domain.CodeMissingSpaceID))
	}

	result, err := r.service.CanRent(ctx, caller, req.SpaceID)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("can-rent check failed: %w", err), zap.String("space_id", req.SpaceID))
		return marshal(errorReply(protocol.TypeSpaceCanRent, req.SpaceID, domain.CodeServerError))
	}

	resp := protocol.CanRentResponse{
		Type:           protocol.TypeSpaceCanRent,
		SpaceID:        req.SpaceID,
		CanRent:        result.CanRent,
		DailyRent:      result.DailyRent,
		MinimumBalance: result.MinimumBalance,
		CurrentRentals: result.CurrentRentals,
		MaxRentals:     result.MaxRentals,
	}
	if result.Code != "" {
		resp.Error = result.Code
		resp.Message = result.Code.Message()
	}
	return marshal(resp)
}

func (r *Router) handleRent(ctx context.Context, caller domain.Identity, raw []byte) []byte {
	req, errCode := decodePayment(raw)
	if errCode != "" {
		return marshal(errorReply(protocol.TypeSpaceRent, req.SpaceID, errCode))
	}

	result, err := r.service.StartRental(ctx, caller, req.SpaceID, req.TransactionSignature)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("rental failed: %w", err), zap.String("space_id", req.SpaceID))
		return marshal(errorReply(protocol.TypeSpaceRent, req.SpaceID, domain.CodeServerError))
	}

	resp := protocol.RentResponse{
		Type:    protocol.TypeSpaceRent,
		SpaceID: req.SpaceID,
		Success: result.Code == "",
	}
	if result.Code != "" {
		resp.Error = result.Code
		resp.Message = result.Code.Message()
		return marshal(resp)
	}
	resp.TransactionHash = result.TransactionHash
	due := result.RentDueDate
	resp.RentDueDate = &due
	resp.Space = protocol.PublicView(result.Space)
	return marshal(resp)
}

func (r *Router) handlePayRent(ctx context.Context, caller domain.Identity, raw []byte) []byte {
	req, errCode := decodePayment(raw)
	if errCode != "" {
		return marshal(errorReply(protocol.TypeSpacePayRent, req.SpaceID, errCode))
	}

	result, err := r.service.PayRent(ctx, caller, req.SpaceID, req.TransactionSignature)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("rent renewal failed: %w", err), zap.String("space_id", req.SpaceID))
		return marshal(errorReply(protocol.TypeSpacePayRent, req.SpaceID, domain.CodeServerError))
	}

	resp := protocol.PayRentResponse{
		Type:    protocol.TypeSpacePayRent,
		SpaceID: req.SpaceID,
		Success: result.Code == "",
	}
	if result.Code != "" {
		resp.Error = result.Code
		resp.Message = result.Code.Message()
		return marshal(resp)
	}
	resp.TransactionHash = result.TransactionHash
	due := result.NewDueDate
	resp.NewDueDate = &due
	return marshal(resp)
}

func (r *Router) handleEntryCheck(ctx context.Context, caller domain.Identity, raw []byte, requestType string) []byte {
	var req protocol.SpaceRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.SpaceID == "" {
		return marshal(errorReply(requestType, "", domain.CodeMissingSpaceID))
	}

	if !r.limiter.Allow(limiterKey(caller)) {
		return marshal(errorReply(requestType, req.SpaceID, domain.CodeRateLimited))
	}

	space, decision, err := r.service.EvaluateEntry(ctx, caller.WalletAddress, req.SpaceID)
	if err != nil {
		if errors.Is(err, domain.ErrSpaceNotFound) {
			return marshal(errorReply(requestType, req.SpaceID, domain.CodeSpaceNotFound))
		}
		logger.ErrorCtx(ctx, fmt.Errorf("entry evaluation failed: %w", err), zap.String("space_id", req.SpaceID))
		return marshal(errorReply(requestType, req.SpaceID, domain.CodeServerError))
	}

	return marshal(entryResponse(requestType, space, decision))
}

func (r *Router) handlePayEntry(ctx context.Context, caller domain.Identity, raw []byte) []byte {
	req, errCode := decodePayment(raw)
	if errCode != "" {
		return marshal(errorReply(protocol.TypeSpacePayEntry, req.SpaceID, errCode))
	}

	result, err := r.service.PayEntryFee(ctx, caller, req.SpaceID, req.TransactionSignature)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("entry fee payment failed: %w", err), zap.String("space_id", req.SpaceID))
		return marshal(errorReply(protocol.TypeSpacePayEntry, req.SpaceID, domain.CodeServerError))
	}

	resp := protocol.PayEntryResponse{
		Type:    protocol.TypeSpacePayEntry,
		SpaceID: req.SpaceID,
		Success: result.Code == "",
	}
	if result.Code != "" {
		resp.Error = result.Code
		resp.Message = result.Code.Message()
		return marshal(resp)
	}
	resp.TransactionSignature = result.TransactionSignature
	return marshal(resp)
}

func (r *Router) handleUpdateSettings(ctx context.Context, caller domain.Identity, raw []byte) []byte {
	var req protocol.UpdateSettingsRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.SpaceID == "" {
		return marshal(errorReply(protocol.TypeSpaceSettings, "", domain.CodeMissingSpaceID))
	}

	result, err := r.service.UpdateSettings(ctx, caller, req.SpaceID, req.Settings)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("settings update failed: %w", err), zap.String("space_id", req.SpaceID))
		return marshal(errorReply(protocol.TypeSpaceSettings, req.SpaceID, domain.CodeServerError))
	}

	resp := protocol.UpdateSettingsResponse{
		Type:    protocol.TypeSpaceSettings,
		SpaceID: req.SpaceID,
		Success: result.Code == "",
	}
	if result.Code != "" {
		resp.Error = result.Code
		resp.Message = result.Code.Message()
		return marshal(resp)
	}
	resp.Space = protocol.PublicView(result.Space)
	resp.EntryFeesReset = result.EntryFeesReset
	return marshal(resp)
}

func (r *Router) handleLeave(ctx context.Context, caller domain.Identity, raw []byte) []byte {
	var req protocol.SpaceRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.SpaceID == "" {
		return marshal(errorReply(protocol.TypeSpaceLeave, "", domain.CodeMissingSpaceID))
	}

	result, err := r.service.LeaveSpace(ctx, caller, req.SpaceID)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("leave failed: %w", err), zap.String("space_id", req.SpaceID))
		return marshal(errorReply(protocol.TypeSpaceLeave, req.SpaceID, domain.CodeServerError))
	}

	resp := protocol.LeaveResponse{
		Type:    protocol.TypeSpaceLeave,
		SpaceID: req.SpaceID,
		Success: result.Code == "",
	}
	if result.Code != "" {
		resp.Error = result.Code
		resp.Message = result.Code.Message()
	}
	return marshal(resp)
}

// handleVisit is fire-and-forget: it moves the session's presence and bumps
// the visit counter, but never replies
func (r *Router) handleVisit(ctx context.Context, caller domain.Identity, sessionID string, raw []byte) {
	var req protocol.SpaceRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.SpaceID == "" {
		return
	}
	r.presence.Enter(sessionID, caller.WalletAddress, req.SpaceID)
	if err := r.service.RecordVisit(ctx, req.SpaceID); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to record visit: %w", err),
			zap.String("space_id", req.SpaceID))
	}
}

func entryResponse(requestType string, space *schema.Space, decision access.Decision) protocol.EntryResponse {
	resp := protocol.EntryResponse{
		Type:             requestType,
		SpaceID:          space.SpaceID,
		CanEnter:         decision.CanEnter,
		IsOwner:          decision.IsOwner,
		BlockingReason:   decision.BlockingReason,
		TokenGateMet:     decision.TokenGateMet,
		EntryFeePaid:     decision.EntryFeePaid,
		UserTokenBalance: decision.UserTokenBalance,
		OwnerWallet:      space.Owner(),
		AccessType:       string(space.AccessType),
	}
	if decision.BlockingReason != "" {
		resp.Reason = decision.BlockingReason.Message()
	}
	if space.TokenGate.Enabled {
		resp.TokenAddress = space.TokenGate.TokenAddress
		resp.MinimumBalance = space.TokenGate.MinimumBalance
		resp.TokenSymbol = space.TokenGate.TokenSymbol
	}
	if space.EntryFee.Enabled {
		resp.EntryFeeAmount = space.EntryFee.Amount
	}
	return resp
}

// decodePayment validates the shared shape of payment-carrying requests
// spaceIDOf pulls the space ID out of a raw frame so refusals can still name
// the space the request was about; undecodable frames yield an empty ID
func spaceIDOf(raw []byte) string {
	var req protocol.SpaceRequest
	_ = json.Unmarshal(raw, &req)
	return req.SpaceID
}

func decodePayment(raw []byte) (protocol.PaymentRequest, domain.Code) {
	var req protocol.PaymentRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.SpaceID == "" {
		return req, domain.CodeMissingSpaceID
	}
	if req.TransactionSignature == "" {
		return req, domain.CodeMissingSignature
	}
	return req, ""
}

// limiterKey buckets anonymous sessions together; authenticated wallets each
// get their own bucket
func limiterKey(caller domain.Identity) string {
	if caller.WalletAddress != "" {
		return caller.WalletAddress
	}
	return "anonymous"
}

func marshal(v any) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		logger.Error(fmt.Errorf("failed to marshal reply: %w", err))
		return nil
	}
	return out
}

func errorReply(requestType, spaceID string, code domain.Code) protocol.ErrorResponse {
	return protocol.ErrorResponse{
		Type:    protocol.TypeError,
		For:     requestType,
		SpaceID: spaceID,
		Error:   code,
		Message: code.Message(),
	}
}
